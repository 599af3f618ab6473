package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-desk/library"

	"github.com/spf13/cobra"
)

// documentCmd groups the catalog subcommands
var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc", "documents"},
	Short:   "Manage the document catalog",
}

var documentAddCmd = &cobra.Command{
	Use:   "add <id> <title>",
	Short: "Add a document, or more copies of an existing one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		author, _ := cmd.Flags().GetString("author")
		quantity, _ := cmd.Flags().GetInt("quantity")
		subject, _ := cmd.Flags().GetString("subject")

		doc, err := mgr.AddDocument(library.Document{
			ID:       args[0],
			Title:    args[1],
			Author:   author,
			Quantity: quantity,
			Subject:  subject,
		})
		if err != nil {
			return fmt.Errorf("add document: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%s) now has %d copies.\n", doc.Title, doc.ID, doc.Quantity)
		return nil
	},
}

var documentRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a document from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		if err := mgr.RemoveDocument(args[0]); err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Document %s removed.\n", args[0])
		return nil
	},
}

var documentRemoveCopiesCmd = &cobra.Command{
	Use:   "remove-copies <id|title> <count>",
	Short: "Take copies of a document out of stock",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[1], err)
		}
		doc, err := mgr.RemoveCopies(args[0], n)
		if err != nil {
			return fmt.Errorf("remove copies: %w", err)
		}
		if doc.Quantity == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Last copy of %s removed; document deleted.\n", doc.Title)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d copies of %s remain.\n", doc.Quantity, doc.Title)
		return nil
	},
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update <id> <quantity>",
	Short: "Set the number of copies owned",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", args[1], err)
		}
		doc, err := mgr.UpdateQuantity(args[0], n)
		if err != nil {
			return fmt.Errorf("update quantity: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s now has %d copies.\n", doc.Title, doc.Quantity)
		return nil
	},
}

var documentFindCmd = &cobra.Command{
	Use:   "find <id|title>",
	Short: "Show one document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := mgr.FindDocument(strings.Join(args, " "))
		if err != nil {
			return err
		}
		avail, err := mgr.Available(doc.ID)
		if err != nil {
			return err
		}
		avg, n := mgr.AverageRating(doc.Title)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:        %s\n", doc.ID)
		fmt.Fprintf(out, "Title:     %s\n", doc.Title)
		fmt.Fprintf(out, "Author:    %s\n", doc.Author)
		fmt.Fprintf(out, "Subject:   %s\n", doc.Subject)
		fmt.Fprintf(out, "Copies:    %d (%d available)\n", doc.Quantity, avail)
		if n > 0 {
			fmt.Fprintf(out, "Rating:    %.1f stars from %d ratings\n", avg, n)
		}
		return nil
	},
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")

		var docs []*library.Document
		if cmd.Flags().Changed("subject") {
			docs = mgr.DocumentsBySubject(subject)
		} else {
			docs = mgr.Documents()
		}
		return printDocuments(cmd.OutOrStdout(), docs)
	},
}

var documentSubjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List the subjects in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subjects := mgr.Subjects()
		if len(subjects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No subjects in library.")
			return nil
		}
		for _, s := range subjects {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", s, len(mgr.DocumentsBySubject(s)))
		}
		return nil
	},
}

var documentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAdmin(cmd); err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to clear the catalog without --yes")
		}
		if err := mgr.ClearDocuments(); err != nil {
			return err
		}
		log.Warn("document catalog cleared")
		fmt.Fprintln(cmd.OutOrStdout(), "✓ All documents removed.")
		return nil
	},
}

func printDocuments(out io.Writer, docs []*library.Document) error {
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents in library.")
		return nil
	}
	fmt.Fprintf(out, "%-10s %-30s %-25s %-8s %-9s %-20s\n", "ID", "Title", "Author", "Copies", "Available", "Subject")
	fmt.Fprintln(out, strings.Repeat("-", 107))
	for _, d := range docs {
		avail, err := mgr.Available(d.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, library.PrettyDocument(d, avail))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(documentCmd)
	documentCmd.AddCommand(documentAddCmd, documentRemoveCmd, documentRemoveCopiesCmd, documentUpdateCmd,
		documentFindCmd, documentListCmd, documentSubjectsCmd, documentClearCmd)

	documentAddCmd.Flags().StringP("author", "a", "", "author of the document")
	documentAddCmd.Flags().IntP("quantity", "q", 1, "number of copies to add")
	documentAddCmd.Flags().StringP("subject", "s", "", "subject the document is filed under")

	documentListCmd.Flags().StringP("subject", "s", "", "only list documents filed under this subject")

	documentClearCmd.Flags().Bool("yes", false, "confirm clearing the whole catalog")
}
