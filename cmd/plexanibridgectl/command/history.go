package command

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	historyOutcome string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history [profile]",
	Short: "list recorded sync decisions for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := args[0]
		q := url.Values{}
		if historyOutcome != "" {
			q.Set("outcome", historyOutcome)
		}
		if historyLimit > 0 {
			q.Set("limit", fmt.Sprint(historyLimit))
		}
		path := "/api/v1/profiles/" + profile + "/history"
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}

		var out any
		if err := newClient().do("GET", path, nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "filter by outcome (synced, failed, skipped, deleted, not_found)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "max results")
}
