package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"library-desk/library"
	"library-desk/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var borrowCmd = &cobra.Command{
	Use:   "borrow <username> <document-id> [quantity]",
	Short: "Lend copies of a document to a patron",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		qty, err := quantityArg(args, 2)
		if err != nil {
			return err
		}

		rec, err := mgr.Borrow(args[0], args[1], qty)
		if err != nil {
			return fmt.Errorf("borrow failed: %w", err)
		}
		doc, err := mgr.FindDocument(rec.DocumentID)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"user": rec.Username, "document": rec.DocumentID, "quantity": rec.Quantity}).
			Info("document borrowed")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s borrowed %d x %s. Due back in %d days.\n",
			rec.Username, rec.Quantity, doc.Title, mgr.LoanDays())
		return nil
	},
}

var returnCmd = &cobra.Command{
	Use:   "return <username> <document-id> [quantity]",
	Short: "Take borrowed copies back, optionally with a rating",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		qty, err := quantityArg(args, 2)
		if err != nil {
			return err
		}

		if err := mgr.Return(args[0], args[1], qty); err != nil {
			return fmt.Errorf("return failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s returned %d x %s.\n", args[0], qty, args[1])

		if !cmd.Flags().Changed("rating") {
			return nil
		}
		rating, _ := cmd.Flags().GetInt("rating")
		comment, _ := cmd.Flags().GetString("comment")
		doc, err := mgr.FindDocument(args[1])
		if err != nil {
			return err
		}
		r, err := mgr.Rate(doc.Title, args[0], rating, comment)
		if err != nil {
			return fmt.Errorf("rating not saved: %w", err)
		}
		fmt.Fprintf(out, "✓ Rated %s %d stars.\n", r.Title, r.Rating)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what every patron has borrowed and when it is due",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		stats := mgr.Statistics()
		if len(stats) == 0 {
			fmt.Fprintln(out, "No users registered.")
			return
		}
		fmt.Fprintf(out, "Loan period: %d days\n\n", mgr.LoanDays())
		for _, s := range stats {
			printUserStatistics(out, s)
			fmt.Fprintln(out)
		}
	},
}

var overdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List loans past their due date",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printOverdue(cmd.OutOrStdout(), mgr.Overdue())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report overdue loans on the OVERDUE_SCHEDULE until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		schedule := cfg.Schedule
		if cmd.Flags().Changed("schedule") {
			schedule, _ = cmd.Flags().GetString("schedule")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := scheduler.NewOverdueWatcher(mgr, schedule, func(loans []library.OverdueLoan) {
			printOverdue(out, loans)
		}, log)
		if err := w.Start(ctx); err != nil {
			return err
		}
		if now, _ := cmd.Flags().GetBool("now"); now {
			w.Check()
		}

		fmt.Fprintf(out, "Watching for overdue loans (%s). Press Ctrl+C to stop.\n", schedule)
		<-ctx.Done()
		w.Stop()
		return nil
	},
}

func printOverdue(out io.Writer, loans []library.OverdueLoan) {
	if len(loans) == 0 {
		fmt.Fprintln(out, "No overdue loans.")
		return
	}
	fmt.Fprintf(out, "%-15s %-30s %-5s %-12s %s\n", "User", "Document", "Qty", "Borrowed", "Overdue")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, l := range loans {
		fmt.Fprintf(out, "%-15s %-30s %-5d %-12s %d days\n",
			l.User.Username,
			library.Truncate(l.Document.Title, 30),
			l.Record.Quantity,
			l.Record.BorrowDate.Format("2006-01-02"),
			l.DaysOverdue)
	}
}

// quantityArg parses the optional quantity at args[i], defaulting to 1.
func quantityArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 1, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", args[i], err)
	}
	return n, nil
}

func init() {
	rootCmd.AddCommand(borrowCmd, returnCmd, statsCmd, overdueCmd, watchCmd)

	returnCmd.Flags().IntP("rating", "r", 0, "rate the document 1-5 stars on return")
	returnCmd.Flags().StringP("comment", "c", "", "comment to store with the rating")

	watchCmd.Flags().String("schedule", "", "cron expression overriding OVERDUE_SCHEDULE")
	watchCmd.Flags().Bool("now", false, "run one check immediately")
}
