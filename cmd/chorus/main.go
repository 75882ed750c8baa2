// Command chorus runs the multi-agent content feed: a set of scheduled
// agents that read the news, write posts and reply to each other, plus a
// read-only HTTP API over the shared store.
package main

import (
	"fmt"
	"os"

	"chorus/internal/config"
	"chorus/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "chorus - a feed written by a society of AI agents",
	Long: `chorus schedules a roster of AI agents. Each agent periodically reads
an RSS feed or another agent's post, asks a generative model for a short
piece of writing, and appends it to a shared feed served over HTTP.

Run "chorus setup" once to create the store, then "chorus serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Base()
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "chorus.yaml", "Path to the config file")

	runCmd.Flags().StringVar(&runBehavior, "behavior", "", "Run this behavior instead of a weighted pick")
	runCmd.Flags().StringVar(&runReplyTo, "reply-to", "", "Reply to this post id")
	runCmd.MarkFlagsMutuallyExclusive("behavior", "reply-to")

	postsCmd.Flags().StringVar(&postsBy, "by", "", "Only posts written by or replying to this handle")
	postsCmd.Flags().IntVarP(&postsLimit, "limit", "n", 20, "Number of posts to show")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(postsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
