package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "realestate-bot",
	Short:         "WhatsApp real-estate query bot",
	Long:          "realestate-bot answers WhatsApp property questions from a Google Sheets listing, replying with text and photos through an Evolution API gateway.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(listingsCmd())
	rootCmd.AddCommand(turnsCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("realestate-bot %s\n", Version)
		},
	}
}

func listingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listings",
		Short: "Fetch the available listing and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, &awsLoader{})
			if err != nil {
				return err
			}
			cache, err := newListingCache(ctx, cfg)
			if err != nil {
				return err
			}
			props, err := cache.Listings(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"count": len(props), "propiedades": props})
		},
	}
}

func turnsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "turns <sender>",
		Short: "Show archived turns for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table := os.Getenv("TURN_LOG_TABLE")
			if table == "" {
				return errors.New("TURN_LOG_TABLE is not set")
			}
			archive, err := newTurnArchive(ctx, &awsLoader{}, table)
			if err != nil {
				return err
			}
			stats, err := archive.SenderStats(ctx, args[0])
			if err != nil {
				return err
			}
			recent, err := archive.RecentTurns(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"stats": stats, "turns": recent})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of turns to show")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
