package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const volumesJSON = `{
  "totalItems": 57,
  "items": [
    {"volumeInfo": {"title": "Dune", "authors": ["Frank Herbert"], "publisher": "Chilton", "publishedDate": "1965", "description": "Desert planet."}},
    {"volumeInfo": {"title": "Dune Messiah"}},
    {"volumeInfo": {"title": "Children of Dune", "authors": ["Frank Herbert", "Someone Else"]}},
    {"volumeInfo": {"title": "God Emperor of Dune"}}
  ]
}`

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return NewClient(
		WithBaseURL(url),
		WithRateLimit(1000),
		WithRetryInterval(time.Millisecond),
		WithMaxRetries(2),
		WithLogger(log),
	)
}

func TestSearchDecodesVolumes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(volumesJSON))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Search(context.Background(), "  dune & sand ", 0)
	require.NoError(t, err)
	assert.Equal(t, "dune & sand", gotQuery)
	assert.Equal(t, 57, res.TotalItems)
	assert.False(t, res.Cached)
	require.Len(t, res.Volumes, DefaultLimit)

	first := res.Volumes[0]
	assert.Equal(t, "Dune", first.Title)
	assert.Equal(t, "Frank Herbert", first.AuthorList())
	assert.Equal(t, "Chilton", first.Publisher)
	assert.Equal(t, "1965", first.PublishedDate)
	assert.Equal(t, "Desert planet.", first.Description)

	second := res.Volumes[1]
	assert.Equal(t, "Unknown Author", second.AuthorList())
	assert.Equal(t, "Unknown Publisher", second.Publisher)
	assert.Equal(t, "Unknown Date", second.PublishedDate)
	assert.Equal(t, "No description available.", second.Description)

	assert.Equal(t, "Frank Herbert, Someone Else", res.Volumes[2].AuthorList())
}

func TestSearchMissingTitleAndLongDescription(t *testing.T) {
	long := strings.Repeat("a", 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"description":"` + long + `"}}]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Search(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, res.Volumes, 1)
	assert.Equal(t, "Unknown Title", res.Volumes[0].Title)
	assert.Equal(t, strings.Repeat("a", 150)+"...", res.Volumes[0].Description)
}

func TestSearchNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":0}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Search(context.Background(), "zzzz", 3)
	require.NoError(t, err)
	assert.Empty(t, res.Volumes)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(volumesJSON))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Search(context.Background(), "dune", 1)
	require.NoError(t, err)
	assert.Len(t, res.Volumes, 1)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSearchGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Search(context.Background(), "dune", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSearchClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Search(context.Background(), "dune", 1)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSearchEmptyQuery(t *testing.T) {
	_, err := NewClient().Search(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, srv.URL).Search(ctx, "dune", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
