package catalog

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Searcher is what Service needs from the remote catalog.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*Result, error)
}

// Service answers catalog searches from the cache when it can and from the
// remote catalog otherwise. The cache is optional.
type Service struct {
	remote Searcher
	cache  *Cache
	limit  int
	log    logrus.FieldLogger
}

// NewService wires a remote searcher to an optional cache.
func NewService(remote Searcher, cache *Cache, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{remote: remote, cache: cache, limit: DefaultLimit, log: log}
}

// Search returns the result for query.
func (s *Service) Search(ctx context.Context, query string) (*Result, error) {
	if s.cache != nil {
		res, ok, err := s.cache.Get(query)
		if err != nil {
			s.log.WithError(err).Warn("catalog cache read failed")
		} else if ok {
			s.log.WithField("query", query).Debug("catalog cache hit")
			return res, nil
		}
	}

	res, err := s.remote.Search(ctx, query, s.limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Put(res); err != nil {
			s.log.WithError(err).Warn("catalog cache write failed")
		}
	}
	return res, nil
}

// Outcome is delivered by SearchAsync.
type Outcome struct {
	Result *Result
	Err    error
}

// SearchAsync runs Search on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (s *Service) SearchAsync(ctx context.Context, query string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := s.Search(ctx, query)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
