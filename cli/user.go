package cli

import (
	"fmt"
	"io"
	"strings"

	"library-desk/library"

	"github.com/spf13/cobra"
)

// userCmd groups the patron subcommands
var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Manage library patrons",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a patron",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = cfg.DefaultUserPassword
		}

		u, err := mgr.AddUser(args[0], name, password)
		if err != nil {
			return fmt.Errorf("add user: %w", err)
		}
		log.WithField("user", u.Username).Info("patron registered")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ User %s (%s) added.\n", u.Username, u.DisplayName())
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patrons",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		users := mgr.Users()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users registered.")
			return
		}
		fmt.Fprintf(out, "%-20s %-30s %s\n", "Username", "Name", "Borrowed")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, u := range users {
			fmt.Fprintf(out, "%-20s %-30s %d\n", u.Username, u.Name, u.TotalBorrowed())
		}
	},
}

var userInfoCmd = &cobra.Command{
	Use:   "info <username>",
	Short: "Show a patron and what they have borrowed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mgr.UserInfo(args[0])
		if err != nil {
			return err
		}
		printUserStatistics(cmd.OutOrStdout(), *s)
		return nil
	},
}

func printUserStatistics(out io.Writer, s library.UserStatistics) {
	fmt.Fprintf(out, "User: %s (%s)\n", s.User.Username, s.User.DisplayName())
	fmt.Fprintf(out, "Total borrowed: %d\n", s.TotalBorrowed)
	for _, l := range s.Loans {
		since := "-"
		if l.HasLogEntry {
			since = l.BorrowDate.Format("2006-01-02")
		}
		fmt.Fprintf(out, "  - %s (%s) x%d, borrowed %s: %s\n", l.Document.Title, l.Document.ID, l.Quantity, since, l.Status())
	}
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userListCmd, userInfoCmd)

	userAddCmd.Flags().StringP("name", "n", "", "full name of the patron")
	userAddCmd.Flags().StringP("password", "p", "", "initial password (default $LIBRARY_DEFAULT_USER_PASSWORD)")
}
