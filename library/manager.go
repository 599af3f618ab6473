package library

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// DefaultLoanDays is how long a borrowed document may be kept.
const DefaultLoanDays = 7

// LibraryManager holds the library in memory and mirrors every change to the
// CSV files of its Store. It is safe for concurrent use.
type LibraryManager struct {
	mu    sync.RWMutex
	store *Store
	log   logrus.FieldLogger

	now        func() time.Time
	loanDays   int
	bcryptCost int

	documents map[string]*Document
	users     map[string]*User
	accounts  map[string]*Account
	borrowLog []BorrowedRecord
	ratings   []BookRating
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(lm *LibraryManager) { lm.now = now }
}

// WithLoanDays sets the loan period used for due dates.
func WithLoanDays(days int) Option {
	return func(lm *LibraryManager) {
		if days > 0 {
			lm.loanDays = days
		}
	}
}

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) Option {
	return func(lm *LibraryManager) { lm.bcryptCost = cost }
}

// WithLogger sets the logger used for load warnings.
func WithLogger(log logrus.FieldLogger) Option {
	return func(lm *LibraryManager) { lm.log = log }
}

// NewLibraryManager opens (or creates) the data directory and loads every
// CSV file in it.
func NewLibraryManager(dataDir string, opts ...Option) (*LibraryManager, error) {
	lm := &LibraryManager{
		log:        logrus.StandardLogger(),
		now:        time.Now,
		loanDays:   DefaultLoanDays,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(lm)
	}

	store, err := NewStore(dataDir, lm.log)
	if err != nil {
		return nil, err
	}
	lm.store = store

	if err := lm.Reload(); err != nil {
		return nil, err
	}
	return lm, nil
}

// LoanDays returns the configured loan period.
func (lm *LibraryManager) LoanDays() int { return lm.loanDays }

// Reload discards the in-memory state and reads everything from disk again.
func (lm *LibraryManager) Reload() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	docs, err := lm.store.LoadDocuments()
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	users, err := lm.store.LoadUsers()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	accounts, err := lm.store.LoadAccounts()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	borrowed, err := lm.store.LoadBorrowed()
	if err != nil {
		return fmt.Errorf("load borrowed records: %w", err)
	}
	borrowLog, err := lm.store.LoadBorrowLog()
	if err != nil {
		return fmt.Errorf("load borrow log: %w", err)
	}
	ratings, err := lm.store.LoadRatings()
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}

	lm.documents = docs
	lm.users = users
	lm.accounts = accounts
	lm.borrowLog = borrowLog
	lm.ratings = ratings

	for _, e := range borrowed {
		u, ok := lm.users[e.Username]
		if !ok {
			lm.log.WithField("user", e.Username).Warn("dropping borrowed record for unknown user")
			continue
		}
		d, ok := lm.documents[e.DocumentID]
		if !ok {
			lm.log.WithField("document", e.DocumentID).Warn("dropping borrowed record for unknown document")
			continue
		}
		if lm.borrowedCount(d.ID)+e.Quantity > d.Quantity {
			lm.log.WithFields(logrus.Fields{"user": e.Username, "document": d.ID, "quantity": e.Quantity}).
				Warn("dropping borrowed record exceeding stock")
			continue
		}
		u.Borrowed[d.ID] += e.Quantity
	}
	lm.reconcileLog()
	return nil
}

type loanKey struct{ user, doc string }

// reconcileLog trims borrow-log entries that the borrowed ledger does not
// back, oldest first, so stale or dropped loans never show up as overdue.
func (lm *LibraryManager) reconcileLog() {
	logged := make(map[loanKey]int)
	var order []loanKey
	for _, r := range lm.borrowLog {
		k := loanKey{r.Username, r.DocumentID}
		if _, seen := logged[k]; !seen {
			order = append(order, k)
		}
		logged[k] += r.Quantity
	}
	for _, k := range order {
		held := 0
		if u, ok := lm.users[k.user]; ok {
			held = u.Borrowed[k.doc]
		}
		if excess := logged[k] - held; excess > 0 {
			lm.log.WithFields(logrus.Fields{"user": k.user, "document": k.doc, "quantity": excess}).
				Warn("trimming borrow log entries not backed by borrowed records")
			lm.borrowLog = consumeLog(lm.borrowLog, k.user, k.doc, excess)
		}
	}
}

// persist runs each save in order. If one fails, undo restores the previous
// in-memory state and every save is replayed so the files match it again.
func (lm *LibraryManager) persist(undo func(), saves ...func() error) error {
	for _, save := range saves {
		if err := save(); err != nil {
			undo()
			for _, restore := range saves {
				if rerr := restore(); rerr != nil {
					lm.log.WithError(rerr).Error("failed to restore data file after write error")
				}
			}
			return err
		}
	}
	return nil
}

func (lm *LibraryManager) saveDocuments() error { return lm.store.SaveDocuments(lm.documents) }
func (lm *LibraryManager) saveUsers() error     { return lm.store.SaveUsers(lm.users) }
func (lm *LibraryManager) saveAccounts() error  { return lm.store.SaveAccounts(lm.accounts) }
func (lm *LibraryManager) saveBorrowed() error  { return lm.store.SaveBorrowed(lm.users) }
func (lm *LibraryManager) saveBorrowLog() error { return lm.store.SaveBorrowLog(lm.borrowLog) }
func (lm *LibraryManager) saveRatings() error   { return lm.store.SaveRatings(lm.ratings) }

// ------------------ Document helpers ------------------

// borrowedCount sums every user's ledger for id. Callers hold lm.mu.
func (lm *LibraryManager) borrowedCount(id string) int {
	total := 0
	for _, u := range lm.users {
		total += u.Borrowed[id]
	}
	return total
}

// lookup resolves idOrTitle by exact id, then by case-insensitive title.
// Callers hold lm.mu.
func (lm *LibraryManager) lookup(idOrTitle string) (*Document, bool) {
	key := strings.TrimSpace(idOrTitle)
	if d, ok := lm.documents[key]; ok {
		return d, true
	}
	for _, d := range sortedDocuments(lm.documents) {
		if strings.EqualFold(d.Title, key) {
			return d, true
		}
	}
	return nil, false
}

// AddDocument stores doc. If the id is already present the quantities are
// summed and the existing title, author and subject are kept.
func (lm *LibraryManager) AddDocument(doc Document) (*Document, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.ID == "" || doc.Title == "" {
		return nil, fmt.Errorf("document id and title: %w", ErrEmptyField)
	}
	if doc.Quantity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, doc.Quantity)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	var undo func()
	if existing, ok := lm.documents[doc.ID]; ok {
		prev := existing.Quantity
		undo = func() { existing.Quantity = prev }
	} else {
		undo = func() { delete(lm.documents, doc.ID) }
	}
	mergeDocument(lm.documents, &doc)

	if err := lm.persist(undo, lm.saveDocuments); err != nil {
		return nil, err
	}
	c := *lm.documents[doc.ID]
	return &c, nil
}

// RemoveDocument deletes the document with id. Documents with copies out on
// loan cannot be removed.
func (lm *LibraryManager) RemoveDocument(id string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	d, ok := lm.documents[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if lm.borrowedCount(d.ID) > 0 {
		return fmt.Errorf("cannot remove %q: %w", d.Title, ErrDocumentBorrowed)
	}
	delete(lm.documents, d.ID)
	return lm.persist(func() { lm.documents[d.ID] = d }, lm.saveDocuments)
}

// RemoveCopies takes n copies of a document out of stock. The document is
// found by id or title; once its quantity reaches zero it is deleted. The
// returned document carries the remaining quantity.
func (lm *LibraryManager) RemoveCopies(idOrTitle string, n int) (*Document, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	d, ok := lm.lookup(idOrTitle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, idOrTitle)
	}
	if lm.borrowedCount(d.ID) > 0 {
		return nil, fmt.Errorf("cannot remove %q: %w", d.Title, ErrDocumentBorrowed)
	}
	if n < 1 || n > d.Quantity {
		return nil, fmt.Errorf("%w: cannot remove %d of %d copies", ErrInvalidQuantity, n, d.Quantity)
	}

	prev := d.Quantity
	d.Quantity -= n
	if d.Quantity == 0 {
		delete(lm.documents, d.ID)
	}
	undo := func() {
		d.Quantity = prev
		lm.documents[d.ID] = d
	}
	if err := lm.persist(undo, lm.saveDocuments); err != nil {
		return nil, err
	}
	c := *d
	return &c, nil
}

// UpdateQuantity sets the number of copies owned. It may not drop below the
// number currently borrowed.
func (lm *LibraryManager) UpdateQuantity(id string, n int) (*Document, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	d, ok := lm.documents[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, n)
	}
	if out := lm.borrowedCount(d.ID); n < out {
		return nil, fmt.Errorf("%w: %d copies are borrowed", ErrInvalidQuantity, out)
	}

	prev := d.Quantity
	d.Quantity = n
	if err := lm.persist(func() { d.Quantity = prev }, lm.saveDocuments); err != nil {
		return nil, err
	}
	c := *d
	return &c, nil
}

// FindDocument resolves idOrTitle by id, then by case-insensitive title.
func (lm *LibraryManager) FindDocument(idOrTitle string) (*Document, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	d, ok := lm.lookup(idOrTitle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, idOrTitle)
	}
	c := *d
	return &c, nil
}

// Available returns the number of copies of id on the shelf.
func (lm *LibraryManager) Available(id string) (int, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	d, ok := lm.documents[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return d.Quantity - lm.borrowedCount(id), nil
}

// Documents returns copies of all documents ordered by id.
func (lm *LibraryManager) Documents() []*Document {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return copyDocuments(sortedDocuments(lm.documents))
}

// Subjects returns the distinct non-empty subjects, sorted.
func (lm *LibraryManager) Subjects() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, d := range lm.documents {
		if s := strings.TrimSpace(d.Subject); s != "" {
			seen[s] = struct{}{}
		}
	}
	subjects := make([]string, 0, len(seen))
	for s := range seen {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

// DocumentsBySubject returns the documents filed under subject, ordered by id.
func (lm *LibraryManager) DocumentsBySubject(subject string) []*Document {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	var out []*Document
	for _, d := range sortedDocuments(lm.documents) {
		if strings.TrimSpace(d.Subject) == strings.TrimSpace(subject) {
			out = append(out, d)
		}
	}
	return copyDocuments(out)
}

// ClearDocuments removes every document. Refused while anything is borrowed.
func (lm *LibraryManager) ClearDocuments() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for _, u := range lm.users {
		if len(u.Borrowed) > 0 {
			return fmt.Errorf("cannot clear documents: %w", ErrDocumentBorrowed)
		}
	}
	prev := lm.documents
	lm.documents = make(map[string]*Document)
	return lm.persist(func() { lm.documents = prev }, lm.saveDocuments)
}

func copyDocuments(docs []*Document) []*Document {
	out := make([]*Document, len(docs))
	for i, d := range docs {
		c := *d
		out[i] = &c
	}
	return out
}

// ------------------ User helpers ------------------

// AddUser registers a patron. The password is stored as a bcrypt hash.
func (lm *LibraryManager) AddUser(username, name, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password: %w", ErrEmptyField)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), lm.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.users[username]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	u := &User{
		Username:     username,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(name),
		Borrowed:     make(map[string]int),
	}
	lm.users[username] = u
	if err := lm.persist(func() { delete(lm.users, username) }, lm.saveUsers); err != nil {
		return nil, err
	}
	return u.clone(), nil
}

// FindUser returns a copy of the patron with username.
func (lm *LibraryManager) FindUser(username string) (*User, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	u, ok := lm.users[strings.TrimSpace(username)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u.clone(), nil
}

// Users returns copies of all patrons ordered by username.
func (lm *LibraryManager) Users() []*User {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	sorted := sortedUsers(lm.users)
	out := make([]*User, len(sorted))
	for i, u := range sorted {
		out[i] = u.clone()
	}
	return out
}

// ------------------ Utilities ------------------

// PrettyDocument formats a document for lists.
func PrettyDocument(d *Document, available int) string {
	return fmt.Sprintf("%-10s %-30s %-25s %-8d %-9d %-20s",
		d.ID, Truncate(d.Title, 30), Truncate(d.Author, 25), d.Quantity, available, Truncate(d.Subject, 20))
}

// Truncate shortens s to at most max characters, ending in "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
