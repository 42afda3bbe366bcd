package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

var triggerRatingKey string

var triggerCmd = &cobra.Command{
	Use:   "trigger [profile]",
	Short: "enqueue an immediate sync for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := args[0]
		body := map[string]string{"rating_key": triggerRatingKey}
		var out any
		if err := newClient().do("POST", "/api/v1/profiles/"+profile+"/trigger", body, &out); err != nil {
			return err
		}
		fmt.Printf("triggered sync for profile %q\n", profile)
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerRatingKey, "rating-key", "", "restrict the sync to a single Plex rating key")
}
