package internal

import (
	"fmt"

	"github.com/goplus/upsync/internal/engine"
	"github.com/goplus/upsync/internal/par"
	"github.com/spf13/cobra"
)

// checkWorkers bounds the concurrent remote queries.
const checkWorkers = 4

var outdatedCmd = &cobra.Command{
	Use:   "outdated [library...]",
	Short: "Look for newer upstream revisions",
	Long: `Outdated compares each pinned revision with its upstream: commits with
the remote HEAD, semantic version tags with newer tags of the same major
version, and other numbered tags with tags sharing their prefix. Tags
without a number are listed without a comparison.`,
	RunE: runOutdated,
}

func init() {
	rootCmd.AddCommand(outdatedCmd)
}

func runOutdated(cmd *cobra.Command, args []string) error {
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

	type result struct {
		u   *engine.Update
		err error
	}
	results := par.Map(checkWorkers, len(descs), func(i int) result {
		u, err := a.engine.CheckUpdate(ctx, descs[i])
		return result{u, err}
	})

	t := newTable("NAME", "CURRENT", "LATEST", "")
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
		u := r.u
		latest, status := shortRev(u.Latest), ""
		switch {
		case u.Latest == "":
			latest = "-"
		case u.Outdated:
			status = "update available"
		}
		t.Row(u.Name, shortRev(u.Current), latest, status)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}
