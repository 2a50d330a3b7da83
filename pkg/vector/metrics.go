package vector

import (
	"context"
	"time"

	"github.com/Zereker/storekit/pkg/metrics"
	"github.com/Zereker/storekit/pkg/schema"
)

type meteredStore struct {
	Store
	collectors *metrics.Collectors
	backend    string
}

// WithMetrics records count, latency and result size of every call under store="vector".
func WithMetrics(store Store, collectors *metrics.Collectors, backend string) Store {
	return &meteredStore{Store: store, collectors: collectors, backend: backend}
}

func (s *meteredStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	start := time.Now()
	ids, err := s.Store.Add(ctx, nodes)
	s.collectors.Observe("vector", s.backend, "add", start, err)
	return ids, err
}

func (s *meteredStore) Delete(ctx context.Context, refDocID string, opts ...DeleteOption) error {
	start := time.Now()
	err := s.Store.Delete(ctx, refDocID, opts...)
	s.collectors.Observe("vector", s.backend, "delete", start, err)
	return err
}

func (s *meteredStore) Query(ctx context.Context, q schema.VectorStoreQuery) (schema.VectorStoreQueryResult, error) {
	start := time.Now()
	res, err := s.Store.Query(ctx, q)
	s.collectors.Observe("vector", s.backend, "query", start, err)
	if err == nil {
		s.collectors.ObserveResults("vector", s.backend, res.Len())
	}
	return res, err
}
