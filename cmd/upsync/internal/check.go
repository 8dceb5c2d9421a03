package internal

import (
	"errors"
	"fmt"

	"github.com/goplus/upsync/internal/rewrite"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [library...]",
	Short: "Validate descriptors and rewrite rules",
	Long: `Check loads the descriptors and validates their rule sets without
fetching anything. Rule sets that are not safe to apply twice are
reported but accepted.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	descs, err := a.descriptors(args)
	if err != nil {
		return err
	}

	var errs []error
	out := cmd.OutOrStdout()
	for _, d := range descs {
		if err := rewrite.Validate(d.Rules); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
			fmt.Fprintf(out, "FAIL\t%s\n", d.Name)
			continue
		}
		note := ""
		if !rewrite.Idempotent(d.Rules) {
			note = "\t(rules are not idempotent)"
		}
		fmt.Fprintf(out, "ok\t%s%s\n", d.Name, note)
	}
	return errors.Join(errs...)
}
