package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the current session",
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

		if !m.Restore(cmd.Context()) {
			return fmt.Errorf("not logged in")
		}

		user := m.Snapshot().User
		fmt.Printf("%s <%s>\n", user.Name(), user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
