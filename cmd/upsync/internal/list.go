package internal

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the declared libraries",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	descs, err := a.descriptors(nil)
	if err != nil {
		return err
	}

	t := newTable("NAME", "REVISION", "KIND", "SOURCE")
	for _, d := range descs {
		t.Row(d.Name, shortRev(d.Revision), d.RevisionKind().String(), d.Source())
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

// newTable returns a borderless table with the given headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(2)
		})
}
