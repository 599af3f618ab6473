package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// ratingCmd groups the book rating subcommands
var ratingCmd = &cobra.Command{
	Use:     "rating",
	Aliases: []string{"ratings"},
	Short:   "Rate books and read ratings",
}

var ratingAddCmd = &cobra.Command{
	Use:   "add <title> <username> <rating> [comment...]",
	Short: "Rate a book 1-5 stars",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		rating, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid rating %q: %w", args[2], err)
		}
		r, err := mgr.Rate(args[0], args[1], rating, strings.Join(args[3:], " "))
		if err != nil {
			return fmt.Errorf("rating not saved: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s rated %s %d stars.\n", r.Username, r.Title, r.Rating)
		return nil
	},
}

var ratingListCmd = &cobra.Command{
	Use:   "list [title]",
	Short: "List ratings, optionally for one title",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		shown := 0
		for _, r := range mgr.Ratings() {
			if len(args) == 1 && !strings.EqualFold(r.Title, args[0]) {
				continue
			}
			fmt.Fprintln(out, r.String())
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No ratings yet.")
			return
		}
		if len(args) == 1 {
			avg, n := mgr.AverageRating(args[0])
			fmt.Fprintf(out, "Average: %.1f stars from %d ratings\n", avg, n)
		}
	},
}

func init() {
	rootCmd.AddCommand(ratingCmd)
	ratingCmd.AddCommand(ratingAddCmd, ratingListCmd)
}
