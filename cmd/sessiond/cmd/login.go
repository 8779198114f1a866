package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pawsy/sessiond/identity"
	"github.com/pawsy/sessiond/internal/util"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the identity service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		username := loginUsername
		if username == "" {
			fmt.Print("Username: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading username: %w", err)
			}
			username = strings.TrimSpace(line)
		}
		if username == "" {
			return fmt.Errorf("username is required")
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		defer util.WipeBytes(password)

		m, closer, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer closer()

		if err := m.Login(cmd.Context(), identity.Credentials{
			Username: username,
			Password: string(password),
		}); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		snap := m.Snapshot()
		fmt.Printf("Logged in as %s (%s)\n", snap.User.Name(), snap.User.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username to authenticate as")
}
