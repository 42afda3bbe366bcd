package command

import (
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo [event-id]",
	Short: "reverse a single recorded sync decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newClient().do("POST", "/api/v1/history/"+args[0]+"/undo", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}
