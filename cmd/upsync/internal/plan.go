package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <library>",
	Short: "Show the file mappings of a library",
	Long: `Plan fetches and builds a library and prints where each selected
upstream file would be installed, without touching the project. Files the
rewrite rules apply to are marked with "*".`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	p, err := a.engine.Plan(ctx, descs[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s -> %s\n", p.Name, p.Dest)
	for i, m := range p.Mappings {
		mark := " "
		if p.Rewrite[i] {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s -> %s\n", mark, m.Src, m.Dst)
	}
	return nil
}
