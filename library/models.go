package library

import (
	"sort"
	"time"
)

// Document is a catalog entry. Quantity counts every copy the library owns,
// including the ones currently out on loan.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
	Subject  string `json:"subject"`
}

// User is a registered patron together with their borrowed-quantity ledger.
type User struct {
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"` // Don't serialize password hash
	Name         string         `json:"name"`
	Borrowed     map[string]int `json:"borrowed"`
}

// DisplayName returns the patron's name, or the username when none was given.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// BorrowedQuantity reports how many copies of docID the user holds.
func (u *User) BorrowedQuantity(docID string) int {
	return u.Borrowed[docID]
}

// TotalBorrowed sums the ledger.
func (u *User) TotalBorrowed() int {
	total := 0
	for _, n := range u.Borrowed {
		total += n
	}
	return total
}

// BorrowedIDs returns the ids of documents the user holds, sorted.
func (u *User) BorrowedIDs() []string {
	ids := make([]string, 0, len(u.Borrowed))
	for id := range u.Borrowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (u *User) clone() *User {
	c := *u
	c.Borrowed = make(map[string]int, len(u.Borrowed))
	for k, v := range u.Borrowed {
		c.Borrowed[k] = v
	}
	return &c
}

// Account is an admin login.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// BorrowedRecord is one entry of the borrow log, used for due-date tracking.
type BorrowedRecord struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	DocumentID string    `json:"document_id"`
	Quantity   int       `json:"quantity"`
	BorrowDate time.Time `json:"borrow_date"`
}

// BookRating is a patron's 1-5 star rating of a title.
type BookRating struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// LoanStatus describes one borrowed document in the statistics report.
type LoanStatus struct {
	Document      *Document
	Quantity      int
	BorrowDate    time.Time
	DaysBorrowed  int
	DaysRemaining int
	HasLogEntry   bool
}

// Overdue reports whether the loan period has been exceeded.
func (s LoanStatus) Overdue() bool { return s.HasLogEntry && s.DaysRemaining < 0 }

// UserStatistics is the per-patron section of the statistics report.
type UserStatistics struct {
	User          *User
	TotalBorrowed int
	Loans         []LoanStatus
}

// OverdueLoan is a borrow-log entry past its due date.
type OverdueLoan struct {
	User         *User
	Document     *Document
	Record       BorrowedRecord
	DaysBorrowed int
	DaysOverdue  int
}
