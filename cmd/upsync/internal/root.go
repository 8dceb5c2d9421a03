package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "upsync",
	Short: "upsync vendors pinned upstream libraries into a project",
	Long: `upsync fetches pinned revisions of third-party native libraries, copies
the selected files into the project and rewrites their namespaces and
symbol prefixes so they cannot collide with other copies.

Libraries are declared by descriptor files in the upstream directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configFile string

func init() {
	f := rootCmd.PersistentFlags()
	f.String("root", ".", "Project root")
	f.String("upstream", "upstream", "Descriptor directory, relative to the project root")
	f.String("cache", "", "Work directory for upstream snapshots (default <user cache>/.upsync)")
	f.String("git", "git", "Git executable")
	f.StringVar(&configFile, "config", "", "Configuration file (default <root>/upsync.toml)")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.BoolP("verbose", "v", false, "Debug logging and build tool output")
	f.Duration("timeout", 0, "Abort after this long; 0 means no limit")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "upsync:", err)
		os.Exit(1)
	}
}
