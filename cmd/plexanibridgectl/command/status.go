package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show every profile's scheduler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newClient().do("GET", "/api/v1/status", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
