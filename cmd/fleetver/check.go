package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetver/fleetver/internal/log"
	"github.com/fleetver/fleetver/internal/release"
)

var checkCmd = &cobra.Command{
	Use:   "check <current-version>",
	Short: "One-shot query: what comes after the given version?",
	Long: `Query the configured release repository once and print the version
that follows the given one, e.g.:

  fleetver check v1.0.0 --owner vateron --repo firmware`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		_, resolver, _, _ := buildCore(cfg, log.Default())
		next, err := resolver.NextVersion(cmd.Context(), args[0])
		if errors.Is(err, release.ErrNotFound) {
			fmt.Printf("No update available after %s\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println(next)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest published release tag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		_, resolver, _, _ := buildCore(cfg, log.Default())
		latest, err := resolver.Latest(cmd.Context())
		if errors.Is(err, release.ErrNotFound) {
			fmt.Println("No releases published")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println(latest)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{checkCmd, latestCmd} {
		cmd.Flags().String("owner", "", "release repository owner (overrides config)")
		cmd.Flags().String("repo", "", "release repository name (overrides config)")
	}
}
