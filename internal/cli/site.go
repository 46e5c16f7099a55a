package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/loupe-analytics/loupe/internal/config"
	"github.com/loupe-analytics/loupe/internal/database"
	"github.com/loupe-analytics/loupe/internal/sites"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage registered sites",
	Long: `Manage the sites Loupe tracks.

Only registered sites accept beacons; events for unknown domains are
rejected at ingestion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var (
	siteCreateOwner  string
	siteListFormat   string
	siteShowFormat   string
	siteDeleteYes    bool
	siteImportDryRun bool
)

var siteCreateCmd = &cobra.Command{
	Use:   "create <domain> [--owner <id>]",
	Short: "Register a new site",
	Long: `Register a site for tracking. The domain is normalized to its
canonical form (lowercase, no scheme, no www prefix) before insertion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context) error {
			site, err := sites.Create(ctx, siteCreateOwner, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s\n", site.Domain)
			fmt.Printf("  site_id: %s\n", site.ID)
			fmt.Printf("  snippet: <script defer src=\"https://YOUR_LOUPE_HOST/script.js\" data-website-id=\"%s\"></script>\n", site.ID)
			return nil
		})
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list [--format table|json|csv]",
	Short: "List registered sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context) error {
			all, err := sites.List(ctx)
			if err != nil {
				return err
			}
			return printSites(all, siteListFormat)
		})
	},
}

var siteShowCmd = &cobra.Command{
	Use:   "show <domain> [--format table|json]",
	Short: "Show one site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context) error {
			site, err := sites.GetByDomain(ctx, args[0])
			if err != nil {
				return err
			}
			if siteShowFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(site)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "site_id\t%s\n", site.ID)
			fmt.Fprintf(w, "domain\t%s\n", site.Domain)
			fmt.Fprintf(w, "owner\t%s\n", site.OwnerID)
			fmt.Fprintf(w, "created\t%s\n", site.CreatedAt.Format(time.RFC3339))
			return w.Flush()
		})
	},
}

var siteDeleteCmd = &cobra.Command{
	Use:   "delete <domain> [--yes]",
	Short: "Delete a site",
	Long: `Delete a registered site. Its events are removed with it.

Prompts for confirmation when run interactively; pass --yes to skip.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context) error {
			site, err := sites.GetByDomain(ctx, args[0])
			if err != nil {
				return err
			}

			if !siteDeleteYes && term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Printf("Delete %s and all its events? [y/N] ", site.Domain)
				reader := bufio.NewReader(os.Stdin)
				response, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			if err := sites.Delete(ctx, site.Domain); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", site.Domain)
			return nil
		})
	},
}

type siteImportEntry struct {
	Domain string `yaml:"domain"`
	Owner  string `yaml:"owner"`
}

var siteImportCmd = &cobra.Command{
	Use:   "import <file.yaml> [--dry-run]",
	Short: "Bulk register sites from a YAML file",
	Long: `Register many sites at once from a YAML list:

  - domain: example.com
    owner: alice
  - domain: blog.example.com

Already registered domains are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var entries []siteImportEntry
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		if len(entries) == 0 {
			return errors.New("no sites in import file")
		}

		return withDatabase(func(ctx context.Context) error {
			var created, skipped int
			for _, entry := range entries {
				domain, err := sites.Normalize(entry.Domain)
				if err != nil {
					fmt.Printf("skip %q: %v\n", entry.Domain, err)
					skipped++
					continue
				}
				if _, err := sites.GetByDomain(ctx, domain); err == nil {
					fmt.Printf("skip %s: already registered\n", domain)
					skipped++
					continue
				}
				if siteImportDryRun {
					fmt.Printf("would register %s\n", domain)
					created++
					continue
				}
				site, err := sites.Create(ctx, entry.Owner, domain)
				if err != nil {
					return fmt.Errorf("failed to register %s: %w", domain, err)
				}
				fmt.Printf("registered %s (%s)\n", site.Domain, site.ID)
				created++
			}
			fmt.Printf("%d registered, %d skipped\n", created, skipped)
			return nil
		})
	},
}

func printSites(all []sites.Site, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		if err := w.Write([]string{"site_id", "domain", "owner_id", "created_at"}); err != nil {
			return err
		}
		for _, s := range all {
			if err := w.Write([]string{s.ID.String(), s.Domain, s.OwnerID, s.CreatedAt.Format(time.RFC3339)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSITE_ID\tOWNER\tCREATED")
		for _, s := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Domain, s.ID, s.OwnerID, s.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	}
}

// withDatabase loads config, opens the shared pool, and runs fn with a
// bounded context. One-shot CLI commands share this instead of each
// reimplementing connection teardown.
func withDatabase(fn func(context.Context) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fn(ctx)
}

func init() {
	siteCreateCmd.Flags().StringVar(&siteCreateOwner, "owner", "", "owner reference stored with the site")
	siteListCmd.Flags().StringVar(&siteListFormat, "format", "table", "output format: table, json, or csv")
	siteShowCmd.Flags().StringVar(&siteShowFormat, "format", "table", "output format: table or json")
	siteDeleteCmd.Flags().BoolVar(&siteDeleteYes, "yes", false, "skip the confirmation prompt")
	siteImportCmd.Flags().BoolVar(&siteImportDryRun, "dry-run", false, "report what would be registered without writing")

	siteCmd.AddCommand(siteCreateCmd, siteListCmd, siteShowCmd, siteDeleteCmd, siteImportCmd)
	RootCmd.AddCommand(siteCmd)
}
