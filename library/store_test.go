package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*Store, *logtest.Hook) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	s, err := NewStore(filepath.Join(t.TempDir(), "data"), log)
	require.NoError(t, err)
	return s, hook
}

func TestStoreMissingFilesAreEmpty(t *testing.T) {
	s, hook := tempStore(t)

	docs, err := s.LoadDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)

	log, err := s.LoadBorrowLog()
	require.NoError(t, err)
	assert.Empty(t, log)

	ratings, err := s.LoadRatings()
	require.NoError(t, err)
	assert.Empty(t, ratings)

	assert.Empty(t, hook.AllEntries())
}

func TestStoreSkipsMalformedRows(t *testing.T) {
	s, hook := tempStore(t)
	writeFile(t, s.Dir(), DocumentsFile, "D1,Dune,Frank Herbert,2,Fiction\n"+
		"D2,Short row\n"+
		"D3,Emma,Jane Austen,many,Classics\n"+
		"D4,SICP,Abelson,-1,Computing\n"+
		"D5,Ulysses,James Joyce,1,Classics\n")
	writeFile(t, s.Dir(), BorrowLogFile, "alice,D1,1,not-a-date\n"+
		"alice,D1,1,2024-02-01,abc\n")

	docs, err := s.LoadDocuments()
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Contains(t, docs, "D1")
	assert.Contains(t, docs, "D5")

	log, err := s.LoadBorrowLog()
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "abc", log[0].ID)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), log[0].BorrowDate)

	assert.Len(t, hook.AllEntries(), 4)
}

func TestStoreReadsUnbalancedQuotesLineByLine(t *testing.T) {
	s, hook := tempStore(t)
	writeFile(t, s.Dir(), RatingsFile, "Dune,alice,5,\"Loved it\n1984,bob,4,ok\nEmma,carol,3,fine\n")

	ratings, err := s.LoadRatings()
	require.NoError(t, err)
	require.Len(t, ratings, 3)
	assert.Equal(t, "\"Loved it", ratings[0].Comment)
	assert.Equal(t, "1984", ratings[1].Title)
	assert.Equal(t, "bob", ratings[1].Username)
	assert.Equal(t, "fine", ratings[2].Comment)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestStoreRecoversAfterBareQuote(t *testing.T) {
	s, _ := tempStore(t)
	writeFile(t, s.Dir(), DocumentsFile, "D1,Dune,Frank Herbert,2,Fiction\n"+
		"D2,The \"Hobbit,Tolkien,1,Fantasy\n"+
		"D3,Emma,Jane Austen,1,Classics\n")

	docs, err := s.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "The \"Hobbit", docs["D2"].Title)
}

func TestStoreFlattensLineBreaksOnWrite(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.SaveRatings([]BookRating{
		{Title: "Dune", Username: "alice", Rating: 5, Comment: "first line\nsecond line"},
	}))
	assert.Equal(t, "Dune,alice,5,first line second line\n", readFile(t, s.Dir(), RatingsFile))

	ratings, err := s.LoadRatings()
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, "first line second line", ratings[0].Comment)
}

func TestStoreMergesDuplicateDocuments(t *testing.T) {
	s, _ := tempStore(t)
	writeFile(t, s.Dir(), DocumentsFile, "D1,Dune,Frank Herbert,2,Fiction\nD1,Dune,Frank Herbert,3,Fiction\n")

	docs, err := s.LoadDocuments()
	require.NoError(t, err)
	require.Contains(t, docs, "D1")
	assert.Equal(t, 5, docs["D1"].Quantity)

	require.NoError(t, s.SaveDocuments(docs))
	assert.Equal(t, "D1,Dune,Frank Herbert,5,Fiction\n", readFile(t, s.Dir(), DocumentsFile))
}

func TestStoreWritesSortedAndLeavesNoTempFiles(t *testing.T) {
	s, _ := tempStore(t)
	docs := map[string]*Document{
		"B": {ID: "B", Title: "Second", Quantity: 1},
		"A": {ID: "A", Title: "First, with comma", Quantity: 2},
	}
	require.NoError(t, s.SaveDocuments(docs))
	assert.Equal(t, "A,\"First, with comma\",,2,\nB,Second,,1,\n", readFile(t, s.Dir(), DocumentsFile))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DocumentsFile, entries[0].Name())
}

func TestStoreBorrowedRoundTrip(t *testing.T) {
	s, _ := tempStore(t)
	users := map[string]*User{
		"bob":   {Username: "bob", Borrowed: map[string]int{"D2": 1, "D1": 2}},
		"alice": {Username: "alice", Borrowed: map[string]int{}},
	}
	require.NoError(t, s.SaveBorrowed(users))
	assert.Equal(t, "bob,D1,2\nbob,D2,1\n", readFile(t, s.Dir(), BorrowedFile))

	entries, err := s.LoadBorrowed()
	require.NoError(t, err)
	assert.Equal(t, []borrowedEntry{
		{Username: "bob", DocumentID: "D1", Quantity: 2},
		{Username: "bob", DocumentID: "D2", Quantity: 1},
	}, entries)
}
