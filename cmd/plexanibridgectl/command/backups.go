package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups [profile]",
	Short: "manage AniList list snapshots for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newClient().do("GET", "/api/v1/profiles/"+args[0]+"/backups", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore [profile] [file]",
	Short: "restore a profile's AniList list from a snapshot file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		path := fmt.Sprintf("/api/v1/profiles/%s/backups/%s/restore", args[0], args[1])
		if err := newClient().do("POST", path, nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	backupsCmd.AddCommand(backupsRestoreCmd)
}
