package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupe-analytics/loupe/internal/analytics"
	"github.com/loupe-analytics/loupe/internal/database"
	"github.com/loupe-analytics/loupe/internal/sites"
)

var statsPeriod string

var statsCmd = &cobra.Command{
	Use:   "stats <domain> [--period 24h|7d|30d|90d]",
	Short: "Print a stats snapshot for one site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context) error {
			site, err := sites.GetByDomain(ctx, args[0])
			if err != nil {
				return err
			}

			engine := analytics.NewEngine(database.DB)
			period := analytics.ParsePeriod(statsPeriod)
			snap, err := engine.ComputeSnapshot(ctx, site.ID, period, time.Now())
			if err != nil {
				return err
			}
			live, err := engine.LiveVisitors(ctx, site.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s, last %s\n\n", site.Domain, period)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "visitors\t%d\t%+.1f%%\n", snap.Overview.Visitors, snap.Deltas.Visitors)
			fmt.Fprintf(w, "pageviews\t%d\t%+.1f%%\n", snap.Overview.Pageviews, snap.Deltas.Pageviews)
			fmt.Fprintf(w, "bounce rate\t%.1f%%\t%+.1f%%\n", snap.Overview.BounceRate*100, snap.Deltas.BounceRate)
			fmt.Fprintf(w, "views/visitor\t%.2f\t\n", snap.Overview.ViewsPerVisitor)
			fmt.Fprintf(w, "live now\t%d\t\n", live)
			if err := w.Flush(); err != nil {
				return err
			}

			if len(snap.Pages) > 0 {
				fmt.Println("\ntop pages:")
				for _, p := range snap.Pages {
					fmt.Printf("  %6d  %s\n", p.Count, p.Name)
				}
			}
			if len(snap.Referrers) > 0 {
				fmt.Println("\ntop referrers:")
				for _, r := range snap.Referrers {
					fmt.Printf("  %6d  %s\n", r.Count, r.Name)
				}
			}
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsPeriod, "period", "30d", "reporting window")
	RootCmd.AddCommand(statsCmd)
}
