package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [library...]",
	Short: "Regenerate vendored libraries",
	Long: `Sync fetches each library's pinned revision, replaces its destination
subtree with the selected files and applies its rewrite rules. All
libraries are synced when none is named. Libraries are processed one at a
time and the first failure stops the run.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	descs, err := a.descriptors(args)
	if err != nil {
		return err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	results, err := a.engine.RunAll(ctx, descs)
	for _, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d files\t%s\n", res.Name, shortRev(res.Revision), len(res.Files), res.Digest)
	}
	return err
}
