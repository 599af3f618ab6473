package library

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DocumentsFile = "documents.csv"
	UsersFile     = "user.csv"
	AccountsFile  = "account.csv"
	BorrowedFile  = "borrowed.csv"
	BorrowLogFile = "borrow_log.csv"
	RatingsFile   = "ratings.csv"

	dateLayout = "2006-01-02"
)

// Store reads and writes the library's CSV files inside one directory.
type Store struct {
	dir string
	log logrus.FieldLogger
}

// borrowedEntry is one row of borrowed.csv before it is reconciled against
// the loaded users and documents.
type borrowedEntry struct {
	Username   string
	DocumentID string
	Quantity   int
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string, log logrus.FieldLogger) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	// Ensure directory exists so first-run succeeds.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// ---------------------------------------------------------------------------
// Row-level helpers
// ---------------------------------------------------------------------------

// readRows streams every record of name to fn. Records shorter than
// minFields and records fn rejects are logged and skipped. A span the CSV
// reader cannot parse, or a quoted field that swallowed line breaks, is
// re-read one line per record with plain comma splitting, the way legacy
// files were written. A missing file yields no rows.
func (s *Store) readRows(name string, minFields int, fn func(rec []string) error) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	handle := func(rec []string, line int) {
		if len(rec) < minFields {
			s.log.WithFields(logrus.Fields{"file": name, "line": line}).
				Warnf("skipping row with %d fields, want at least %d", len(rec), minFields)
			return
		}
		if err := fn(rec); err != nil {
			s.log.WithFields(logrus.Fields{"file": name, "line": line}).
				Warnf("skipping row: %v", err)
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var start int64
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		end := r.InputOffset()

		var perr *csv.ParseError
		switch {
		case errors.As(err, &perr):
			s.log.WithFields(logrus.Fields{"file": name, "line": line}).
				Warnf("reading malformed rows as plain lines: %v", perr.Err)
			readPlain(data[start:end], line, handle)
		case err != nil:
			return fmt.Errorf("read %s: %w", name, err)
		case spansLines(rec):
			s.log.WithFields(logrus.Fields{"file": name, "line": line}).
				Warn("reading unbalanced quotes as plain lines")
			readPlain(data[start:end], line, handle)
		default:
			handle(rec, line)
		}
		line += bytes.Count(data[start:end], []byte("\n"))
		start = end
	}
}

// readPlain splits chunk into lines and each line on every comma.
func readPlain(chunk []byte, line int, handle func(rec []string, line int)) {
	for i, l := range strings.Split(string(chunk), "\n") {
		l = strings.TrimSuffix(l, "\r")
		if l == "" {
			continue
		}
		handle(strings.Split(l, ","), line+i)
	}
}

func spansLines(rec []string) bool {
	for _, f := range rec {
		if strings.ContainsAny(f, "\r\n") {
			return true
		}
	}
	return false
}

// flatten replaces line breaks inside fields with spaces so every record
// stays on one line.
var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// writeRows replaces name with rows. The new content goes to a temp file in
// the same directory which is synced and renamed over the old file, so a
// crash mid-write leaves either the old or the new file intact.
func (s *Store) writeRows(name string, rows [][]string) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	for _, row := range rows {
		for i, f := range row {
			row[i] = flatten.Replace(f)
		}
	}
	w := csv.NewWriter(tmp)
	if err = w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func parseQuantity(field string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, fmt.Errorf("bad quantity %q", field)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative quantity %d", n)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// LoadDocuments reads documents.csv, merging rows that share an id by
// summing their quantities.
func (s *Store) LoadDocuments() (map[string]*Document, error) {
	docs := make(map[string]*Document)
	err := s.readRows(DocumentsFile, 5, func(rec []string) error {
		qty, err := parseQuantity(rec[3])
		if err != nil {
			return err
		}
		mergeDocument(docs, &Document{
			ID:       strings.TrimSpace(rec[0]),
			Title:    rec[1],
			Author:   rec[2],
			Quantity: qty,
			Subject:  rec[4],
		})
		return nil
	})
	return docs, err
}

// SaveDocuments rewrites documents.csv ordered by id.
func (s *Store) SaveDocuments(docs map[string]*Document) error {
	rows := make([][]string, 0, len(docs))
	for _, d := range sortedDocuments(docs) {
		rows = append(rows, []string{d.ID, d.Title, d.Author, strconv.Itoa(d.Quantity), d.Subject})
	}
	return s.writeRows(DocumentsFile, rows)
}

// mergeDocument inserts d, or adds its quantity to the entry already stored
// under the same id.
func mergeDocument(docs map[string]*Document, d *Document) {
	if existing, ok := docs[d.ID]; ok {
		existing.Quantity += d.Quantity
		return
	}
	c := *d
	docs[d.ID] = &c
}

func sortedDocuments(docs map[string]*Document) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------------------------------------------------------------------------
// Users and accounts
// ---------------------------------------------------------------------------

// LoadUsers reads user.csv. Ledgers start empty; see LoadBorrowed.
func (s *Store) LoadUsers() (map[string]*User, error) {
	users := make(map[string]*User)
	err := s.readRows(UsersFile, 3, func(rec []string) error {
		username := strings.TrimSpace(rec[0])
		if username == "" {
			return ErrEmptyField
		}
		users[username] = &User{
			Username:     username,
			PasswordHash: rec[1],
			Name:         rec[2],
			Borrowed:     make(map[string]int),
		}
		return nil
	})
	return users, err
}

// SaveUsers rewrites user.csv ordered by username.
func (s *Store) SaveUsers(users map[string]*User) error {
	rows := make([][]string, 0, len(users))
	for _, u := range sortedUsers(users) {
		rows = append(rows, []string{u.Username, u.PasswordHash, u.Name})
	}
	return s.writeRows(UsersFile, rows)
}

func sortedUsers(users map[string]*User) []*User {
	out := make([]*User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// LoadAccounts reads account.csv.
func (s *Store) LoadAccounts() (map[string]*Account, error) {
	accounts := make(map[string]*Account)
	err := s.readRows(AccountsFile, 2, func(rec []string) error {
		username := strings.TrimSpace(rec[0])
		if username == "" {
			return ErrEmptyField
		}
		accounts[username] = &Account{Username: username, PasswordHash: rec[1]}
		return nil
	})
	return accounts, err
}

// SaveAccounts rewrites account.csv ordered by username.
func (s *Store) SaveAccounts(accounts map[string]*Account) error {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, accounts[name].PasswordHash})
	}
	return s.writeRows(AccountsFile, rows)
}

// ---------------------------------------------------------------------------
// Borrowed ledger and borrow log
// ---------------------------------------------------------------------------

// LoadBorrowed reads borrowed.csv as raw entries.
func (s *Store) LoadBorrowed() ([]borrowedEntry, error) {
	var entries []borrowedEntry
	err := s.readRows(BorrowedFile, 3, func(rec []string) error {
		qty, err := parseQuantity(rec[2])
		if err != nil {
			return err
		}
		if qty == 0 {
			return nil
		}
		entries = append(entries, borrowedEntry{
			Username:   strings.TrimSpace(rec[0]),
			DocumentID: strings.TrimSpace(rec[1]),
			Quantity:   qty,
		})
		return nil
	})
	return entries, err
}

// SaveBorrowed rewrites borrowed.csv from the users' ledgers.
func (s *Store) SaveBorrowed(users map[string]*User) error {
	var rows [][]string
	for _, u := range sortedUsers(users) {
		for _, id := range u.BorrowedIDs() {
			rows = append(rows, []string{u.Username, id, strconv.Itoa(u.Borrowed[id])})
		}
	}
	return s.writeRows(BorrowedFile, rows)
}

// LoadBorrowLog reads borrow_log.csv. Rows written before record ids existed
// are given a fresh id.
func (s *Store) LoadBorrowLog() ([]BorrowedRecord, error) {
	var records []BorrowedRecord
	err := s.readRows(BorrowLogFile, 4, func(rec []string) error {
		qty, err := parseQuantity(rec[2])
		if err != nil {
			return err
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(rec[3]))
		if err != nil {
			return fmt.Errorf("bad borrow date %q", rec[3])
		}
		id := ""
		if len(rec) >= 5 {
			id = strings.TrimSpace(rec[4])
		}
		if id == "" {
			id = uuid.NewString()
		}
		records = append(records, BorrowedRecord{
			ID:         id,
			Username:   strings.TrimSpace(rec[0]),
			DocumentID: strings.TrimSpace(rec[1]),
			Quantity:   qty,
			BorrowDate: date,
		})
		return nil
	})
	return records, err
}

// SaveBorrowLog rewrites borrow_log.csv in the given order.
func (s *Store) SaveBorrowLog(records []BorrowedRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Username, r.DocumentID, strconv.Itoa(r.Quantity), r.BorrowDate.Format(dateLayout), r.ID,
		})
	}
	return s.writeRows(BorrowLogFile, rows)
}

// ---------------------------------------------------------------------------
// Ratings
// ---------------------------------------------------------------------------

// LoadRatings reads ratings.csv. Unquoted commas in legacy comments split the
// row into extra fields; those are joined back into the comment.
func (s *Store) LoadRatings() ([]BookRating, error) {
	var ratings []BookRating
	err := s.readRows(RatingsFile, 4, func(rec []string) error {
		n, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return fmt.Errorf("bad rating %q", rec[2])
		}
		if n < 1 || n > 5 {
			return ErrInvalidRating
		}
		ratings = append(ratings, BookRating{
			Title:    rec[0],
			Username: strings.TrimSpace(rec[1]),
			Rating:   n,
			Comment:  strings.Join(rec[3:], ","),
		})
		return nil
	})
	return ratings, err
}

// SaveRatings rewrites ratings.csv in insertion order.
func (s *Store) SaveRatings(ratings []BookRating) error {
	rows := make([][]string, 0, len(ratings))
	for _, r := range ratings {
		rows = append(rows, []string{r.Title, r.Username, strconv.Itoa(r.Rating), r.Comment})
	}
	return s.writeRows(RatingsFile, rows)
}
