package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [library...]",
	Short: "Check that vendored libraries match a fresh sync",
	Long: `Verify regenerates each library in a scratch project and compares the
result with the installed destination subtree. Hand edits, stale files and
missing installations are reported as drift.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	for _, d := range descs {
		res, err := a.engine.Verify(ctx, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\t%s\n", res.Name, res.Digest)
	}
	return nil
}
