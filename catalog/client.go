package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/books/v1"
	DefaultLimit   = 3

	maxDescriptionLen = 150
)

var (
	ErrEmptyQuery       = errors.New("search query is empty")
	ErrUnexpectedStatus = errors.New("unexpected status from catalog")
)

// Volume is one search hit, with placeholders filled in for missing fields.
type Volume struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"published_date"`
	Description   string   `json:"description"`
}

// AuthorList joins the authors, or says they are unknown.
func (v Volume) AuthorList() string {
	if len(v.Authors) == 0 {
		return "Unknown Author"
	}
	return strings.Join(v.Authors, ", ")
}

// Result is the outcome of one catalog search.
type Result struct {
	Query      string   `json:"query"`
	TotalItems int      `json:"total_items"`
	Volumes    []Volume `json:"volumes"`
	Cached     bool     `json:"-"`
}

// Client queries the Google Books volumes API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries uint64
	retryAfter time.Duration
	log        logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit allows perSecond requests per second with a burst of one.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithMaxRetries bounds how often a transient failure is retried.
func WithMaxRetries(n uint64) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryInterval sets the first backoff interval.
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.retryAfter = d }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a catalog client with rate limiting and retries.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(1), 1), // 1 request per second
		maxRetries: 3,
		retryAfter: backoff.DefaultInitialInterval,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			Description   string   `json:"description"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Search looks query up and returns at most limit volumes. A non-positive
// limit means DefaultLimit.
func (c *Client) Search(ctx context.Context, query string, limit int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	searchURL := fmt.Sprintf("%s/volumes?q=%s", c.baseURL, url.QueryEscape(query))

	var body volumesResponse
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return c.fetch(ctx, searchURL, &body)
	}
	notify := func(err error, wait time.Duration) {
		c.log.WithFields(logrus.Fields{"query": query, "retry_in": wait}).Warnf("catalog search failed: %v", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryAfter
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, c.maxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("search catalog: %w", err)
	}

	res := &Result{Query: query, TotalItems: body.TotalItems}
	for i, item := range body.Items {
		if i >= limit {
			break
		}
		info := item.VolumeInfo
		res.Volumes = append(res.Volumes, Volume{
			Title:         orDefault(info.Title, "Unknown Title"),
			Authors:       info.Authors,
			Publisher:     orDefault(info.Publisher, "Unknown Publisher"),
			PublishedDate: orDefault(info.PublishedDate, "Unknown Date"),
			Description:   truncateDescription(orDefault(info.Description, "No description available.")),
		})
	}
	return res, nil
}

// fetch performs one GET and decodes the body into out. Network errors, 429
// and 5xx are returned as retryable; everything else is permanent.
func (c *Client) fetch(ctx context.Context, u string, out *volumesResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("fetch volumes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= maxDescriptionLen {
		return s
	}
	return string(r[:maxDescriptionLen]) + "..."
}
