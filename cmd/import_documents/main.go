package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-desk/config"
	"library-desk/library"
	"library-desk/logger"

	"github.com/spf13/cobra"
)

// columns expected in the header of an import file, in any order
var columns = []string{"id", "title", "author", "quantity", "subject"}

var (
	envFile string
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "import_documents <file.csv>",
	Short: "Bulk import documents from a headered CSV file",
	Long: `Reads a CSV file whose first row names the columns id, title, author,
quantity and subject, and adds every row to the library. Rows whose id
already exists add their quantity to the existing document.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding the CSV files (default $LIBRARY_DATA_DIR or ./data)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.SetDataDir(dataDir)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	manager, err := library.NewLibraryManager(cfg.DataDir,
		library.WithLogger(log),
		library.WithLoanDays(cfg.LoanDays),
		library.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	docs, skipped, err := readDocuments(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Importing %d documents into %s...\n", len(docs), cfg.DataDir)
	importDocuments(out, manager, docs, skipped)
	return nil
}

// importDocuments adds docs to manager, printing one line per row and a
// summary. It returns how many rows were added and how many failed,
// counting the rows already skipped while parsing.
func importDocuments(out io.Writer, manager *library.LibraryManager, docs []library.Document, skipped int) (int, int) {
	successCount := 0
	errorCount := skipped
	for _, d := range docs {
		fmt.Fprintf(out, "Importing: %s by %s... ", d.Title, d.Author)
		doc, err := manager.AddDocument(d)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %s, copies: %d)\n", doc.ID, doc.Quantity)
		successCount++
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d rows\n", successCount)
	fmt.Fprintf(out, "Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Fprintln(out, "\nCatalog:")
		fmt.Fprintf(out, "%-10s %-50s %-30s %s\n", "ID", "Title", "Author", "Copies")
		fmt.Fprintln(out, strings.Repeat("-", 100))
		for _, d := range manager.Documents() {
			fmt.Fprintf(out, "%-10s %-50s %-30s %d\n", d.ID, library.Truncate(d.Title, 50), library.Truncate(d.Author, 30), d.Quantity)
		}
	}
	return successCount, errorCount
}

// readDocuments parses a headered CSV. Rows with a bad quantity or the wrong
// number of fields are reported and counted as skipped.
func readDocuments(r io.Reader) ([]library.Document, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range []string{"id", "title"} {
		if _, ok := index[c]; !ok {
			return nil, 0, fmt.Errorf("header is missing the %q column (expected %s)", c, strings.Join(columns, ","))
		}
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		docs    []library.Document
		skipped int
		line    = 1
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: line %d: %v, skipping\n", line, err)
			skipped++
			continue
		}

		qty := 1
		if q := field(rec, "quantity"); q != "" {
			if qty, err = strconv.Atoi(q); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: line %d: invalid quantity %q, skipping\n", line, q)
				skipped++
				continue
			}
		}
		docs = append(docs, library.Document{
			ID:       field(rec, "id"),
			Title:    field(rec, "title"),
			Author:   field(rec, "author"),
			Quantity: qty,
			Subject:  field(rec, "subject"),
		})
	}
	return docs, skipped, nil
}
