package cli

// root.go defines the root command, its global flags, and the shared state
// every subcommand works against.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"library-desk/config"
	"library-desk/library"
	"library-desk/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	envFile   string // .env file loaded before reading the environment
	dataDir   string // overrides LIBRARY_DATA_DIR
	adminUser string // admin account used for commands that change data

	cfg *config.Config
	log *logrus.Logger
	mgr *library.LibraryManager
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "library - manage documents, patrons and loans",
	Long: `library keeps a small library's catalog, patrons and loans in CSV files.
A librarian can:
- add, remove and update documents and browse them by subject
- register patrons and record borrow/return transactions
- track due dates and list overdue loans
- rate books and search the Google Books catalog

Commands that change data require an admin account (see "library account").`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the CSV files (default $LIBRARY_DATA_DIR or ./data)")
	rootCmd.PersistentFlags().StringVar(&adminUser, "as", "", "admin account to authenticate as")
}

// setup loads configuration, builds the logger and opens the library.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(envFile); err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.SetDataDir(dataDir)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log = logger.New(cfg.Log.Level, cfg.Log.Format)
	mgr, err = library.NewLibraryManager(cfg.DataDir,
		library.WithLoanDays(cfg.LoanDays),
		library.WithBcryptCost(cfg.BcryptCost),
		library.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}

	if n := len(mgr.Overdue()); n > 0 {
		log.WithField("count", n).Warn("there are overdue loans; run 'library overdue' for details")
	}
	return nil
}

// requireAdmin authenticates the --as account unless login is disabled.
func requireAdmin(cmd *cobra.Command) error {
	if !cfg.RequireLogin {
		return nil
	}
	if !mgr.HasAccounts() {
		return errors.New("no admin account exists yet; create one with 'library account register <username>'")
	}
	if adminUser == "" {
		return errors.New("this command requires an admin login; pass --as <username>")
	}

	password := cfg.AdminPassword
	if password == "" {
		var err error
		password, err = readPassword(cmd, fmt.Sprintf("Password for %s: ", adminUser))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}
	if _, err := mgr.Login(adminUser, password); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	log.WithField("account", adminUser).Debug("admin authenticated")
	return nil
}

// readPassword reads a password with masking when stdin is a terminal, and
// a plain line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr()) // Add newline after password input
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(cmd.InOrStdin())
}

// stdin is shared so that consecutive prompts on piped input do not lose
// buffered lines.
var (
	stdin    *bufio.Reader
	stdinSrc io.Reader
)

func readLine(r io.Reader) (string, error) {
	if stdin == nil || stdinSrc != r {
		stdin, stdinSrc = bufio.NewReader(r), r
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
