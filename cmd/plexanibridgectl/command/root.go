package command

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string
	token  string
)

var rootCmd = &cobra.Command{
	Use:   "plexanibridgectl",
	Short: "plexanibridgectl - operator CLI for the plexanibridge sync service",
	Long: `plexanibridgectl talks to a running plexanibridge service's control
surface: mint service tokens, check profile status, trigger syncs,
browse and undo history, and manage backups.`,
}

// Execute adds all child commands and runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := "http://127.0.0.1:8585"
	if v := os.Getenv("PLEXANIBRIDGE_API_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "plexanibridge control surface URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PLEXANIBRIDGE_TOKEN"), "bearer service token (default: $PLEXANIBRIDGE_TOKEN)")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(backupsCmd)
}
