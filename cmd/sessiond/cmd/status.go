package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		m, closer, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer closer()

		m.Restore(cmd.Context())
		snap := m.Snapshot()

		fmt.Printf("State: %s\n", snap.State)
		if snap.User != nil {
			fmt.Printf("User:  %s (%s)\n", snap.User.Name(), snap.User.Username)
		}
		if pair := m.TokenPair(); pair != nil {
			fmt.Printf("Token: expires %s\n", pair.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		}
		if snap.Err != "" {
			fmt.Printf("Error: %s\n", snap.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
