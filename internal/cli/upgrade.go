package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

const upgradeRepo = "loupe-analytics/loupe"

var (
	upgradeCheckOnly bool
	upgradeAutoYes   bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [--check] [--yes]",
	Short: "Upgrade loupe to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade(upgradeCheckOnly, upgradeAutoYes)
	},
}

func runUpgrade(checkOnly, autoYes bool) error {
	versionStr := strings.TrimSpace(strings.TrimPrefix(Version, "v"))
	if versionStr == "" {
		return errors.New("upgrade is only available for release builds")
	}

	current, err := semver.Parse(versionStr)
	if err != nil {
		return fmt.Errorf("invalid current version %q: %w", Version, err)
	}

	fmt.Printf("Current version: v%s\n", current)

	latest, found, err := selfupdate.DetectLatest(upgradeRepo)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return errors.New("no releases found")
	}

	if !latest.Version.GT(current) {
		fmt.Println("Already up to date.")
		return nil
	}

	fmt.Printf("New release found: v%s -> v%s\n", current, latest.Version)
	if checkOnly {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine executable path: %w", err)
	}

	fmt.Printf("  binary: %s\n", exe)
	fmt.Printf("  target: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if !autoYes {
		fmt.Print("Replace the current binary? [y/N] ")
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

	fmt.Println("Downloading release...")
	if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("upgrade failed: %w", err)
	}

	fmt.Printf("Updated to v%s\n", latest.Version)
	return nil
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeCheckOnly, "check", false, "only check whether a newer release exists")
	upgradeCmd.Flags().BoolVar(&upgradeAutoYes, "yes", false, "skip the confirmation prompt")
	RootCmd.AddCommand(upgradeCmd)
}
