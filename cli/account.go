package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// accountCmd groups the admin account subcommands
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Admin account commands",
	Long: `Manage the admin accounts allowed to change library data.
The first account can be registered without logging in; after that a new
account must be created by an existing admin (--as).`,
}

// accountRegisterCmd represents the account register command
var accountRegisterCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Register a new admin account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mgr.HasAccounts() {
			if err := requireAdmin(cmd); err != nil {
				return err
			}
		}

		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			if password, err = readPassword(cmd, "New password: "); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		acc, err := mgr.RegisterAccount(args[0], password)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		log.WithField("account", acc.Username).Info("admin account registered")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Account %s registered.\n", acc.Username)
		return nil
	},
}

// accountLoginCmd checks a set of credentials without doing anything else
var accountLoginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Check admin credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			if password, err = readPassword(cmd, "Password: "); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		acc, err := mgr.Login(args[0], password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Welcome, %s.\n", acc.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountRegisterCmd)
	accountCmd.AddCommand(accountLoginCmd)

	accountRegisterCmd.Flags().StringP("password", "p", "", "password for the new account (prompted if omitted)")
	accountLoginCmd.Flags().StringP("password", "p", "", "password (prompted if omitted)")
}
