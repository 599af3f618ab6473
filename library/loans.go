package library

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// today returns the current calendar date at UTC midnight, matching how
// borrow dates are parsed from the log.
func (lm *LibraryManager) today() time.Time {
	y, m, d := lm.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// Borrow lends qty copies of docID to username and logs the loan with
// today's date.
func (lm *LibraryManager) Borrow(username, docID string, qty int) (*BorrowedRecord, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	u, ok := lm.users[strings.TrimSpace(username)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	d, ok := lm.documents[strings.TrimSpace(docID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	if avail := d.Quantity - lm.borrowedCount(d.ID); qty > avail {
		return nil, fmt.Errorf("%w: only %d of %q left", ErrInsufficientStock, avail, d.Title)
	}

	rec := BorrowedRecord{
		ID:         uuid.NewString(),
		Username:   u.Username,
		DocumentID: d.ID,
		Quantity:   qty,
		BorrowDate: lm.today(),
	}
	prevLog := lm.borrowLog
	u.Borrowed[d.ID] += qty
	lm.borrowLog = append(append([]BorrowedRecord(nil), lm.borrowLog...), rec)

	undo := func() {
		u.Borrowed[d.ID] -= qty
		if u.Borrowed[d.ID] <= 0 {
			delete(u.Borrowed, d.ID)
		}
		lm.borrowLog = prevLog
	}
	if err := lm.persist(undo, lm.saveBorrowed, lm.saveBorrowLog); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Return takes qty copies of docID back from username. Borrow-log entries
// for the pair are consumed oldest first.
func (lm *LibraryManager) Return(username, docID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	u, ok := lm.users[strings.TrimSpace(username)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	d, ok := lm.documents[strings.TrimSpace(docID)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	held := u.Borrowed[d.ID]
	if qty > held {
		return fmt.Errorf("%w: only %d copies borrowed", ErrReturnExceedsBorrowed, held)
	}

	prevLog := lm.borrowLog
	if held == qty {
		delete(u.Borrowed, d.ID)
	} else {
		u.Borrowed[d.ID] = held - qty
	}
	lm.borrowLog = consumeLog(prevLog, u.Username, d.ID, qty)

	undo := func() {
		u.Borrowed[d.ID] = held
		lm.borrowLog = prevLog
	}
	return lm.persist(undo, lm.saveBorrowed, lm.saveBorrowLog)
}

// consumeLog returns a copy of records with qty removed from the
// (username, docID) entries, oldest borrow date first. Entries that reach
// zero are dropped.
func consumeLog(records []BorrowedRecord, username, docID string, qty int) []BorrowedRecord {
	var idx []int
	for i, r := range records {
		if r.Username == username && r.DocumentID == docID {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return records[idx[a]].BorrowDate.Before(records[idx[b]].BorrowDate)
	})

	remaining := make(map[int]int, len(idx))
	for _, i := range idx {
		take := records[i].Quantity
		if take > qty {
			take = qty
		}
		remaining[i] = records[i].Quantity - take
		qty -= take
	}

	out := make([]BorrowedRecord, 0, len(records))
	for i, r := range records {
		if left, ok := remaining[i]; ok {
			if left == 0 {
				continue
			}
			r.Quantity = left
		}
		out = append(out, r)
	}
	return out
}

// BorrowLog returns a copy of the borrow log in file order.
func (lm *LibraryManager) BorrowLog() []BorrowedRecord {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return append([]BorrowedRecord(nil), lm.borrowLog...)
}

// oldestRecord finds the earliest log entry for the pair. Callers hold lm.mu.
func (lm *LibraryManager) oldestRecord(username, docID string) (BorrowedRecord, bool) {
	var (
		best  BorrowedRecord
		found bool
	)
	for _, r := range lm.borrowLog {
		if r.Username != username || r.DocumentID != docID {
			continue
		}
		if !found || r.BorrowDate.Before(best.BorrowDate) {
			best, found = r, true
		}
	}
	return best, found
}

// Statistics reports, for every patron, what they hold and how long each
// loan has left to run.
func (lm *LibraryManager) Statistics() []UserStatistics {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	today := lm.today()
	var stats []UserStatistics
	for _, u := range sortedUsers(lm.users) {
		stats = append(stats, lm.statisticsFor(u, today))
	}
	return stats
}

// UserInfo is the statistics entry of a single patron.
func (lm *LibraryManager) UserInfo(username string) (*UserStatistics, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	u, ok := lm.users[strings.TrimSpace(username)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	s := lm.statisticsFor(u, lm.today())
	return &s, nil
}

// statisticsFor builds the report entry for u. Callers hold lm.mu.
func (lm *LibraryManager) statisticsFor(u *User, today time.Time) UserStatistics {
	s := UserStatistics{User: u.clone(), TotalBorrowed: u.TotalBorrowed()}
	for _, id := range u.BorrowedIDs() {
		d, ok := lm.documents[id]
		if !ok {
			continue
		}
		doc := *d
		ls := LoanStatus{Document: &doc, Quantity: u.Borrowed[id]}
		if rec, ok := lm.oldestRecord(u.Username, id); ok {
			ls.HasLogEntry = true
			ls.BorrowDate = rec.BorrowDate
			ls.DaysBorrowed = daysBetween(rec.BorrowDate, today)
			ls.DaysRemaining = lm.loanDays - ls.DaysBorrowed
		}
		s.Loans = append(s.Loans, ls)
	}
	return s
}

// Overdue lists borrow-log entries older than the loan period whose patron
// and document still exist, oldest first.
func (lm *LibraryManager) Overdue() []OverdueLoan {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	today := lm.today()
	var out []OverdueLoan
	for _, r := range lm.borrowLog {
		days := daysBetween(r.BorrowDate, today)
		if days <= lm.loanDays {
			continue
		}
		u, ok := lm.users[r.Username]
		if !ok {
			continue
		}
		d, ok := lm.documents[r.DocumentID]
		if !ok {
			continue
		}
		doc := *d
		out = append(out, OverdueLoan{
			User:         u.clone(),
			Document:     &doc,
			Record:       r,
			DaysBorrowed: days,
			DaysOverdue:  days - lm.loanDays,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.BorrowDate.Before(out[j].Record.BorrowDate)
	})
	return out
}

// Status renders the loan state the way the statistics report shows it.
func (s LoanStatus) Status() string {
	switch {
	case !s.HasLogEntry:
		return "no borrow date recorded"
	case s.DaysRemaining > 0:
		return fmt.Sprintf("%d days remaining", s.DaysRemaining)
	case s.DaysRemaining == 0:
		return "due today"
	default:
		return fmt.Sprintf("overdue by %d days", -s.DaysRemaining)
	}
}
