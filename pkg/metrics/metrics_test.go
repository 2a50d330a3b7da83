package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/storekit/pkg/errdefs"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	c.MustRegister(reg)

	c.Observe("vector", "simple", "query", time.Now(), nil)
	c.Observe("vector", "simple", "query", time.Now(), errdefs.Query("bad"))
	c.ObserveResults("vector", "simple", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Operations.WithLabelValues("vector", "simple", "query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Operations.WithLabelValues("vector", "simple", "query", "invalid")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{
		"storekit_store_operations_total",
		"storekit_store_operation_duration_seconds",
		"storekit_query_results",
	}, names)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "unavailable", Status(errdefs.Unavailable(errors.New("eof"), "get")))
	assert.Equal(t, "invalid", Status(errdefs.DimensionMismatch(3, 2)))
	assert.Equal(t, "invalid", Status(fmt.Errorf("wrapped: %w", errdefs.ErrQuery)))
	assert.Equal(t, "error", Status(errors.New("boom")))
}
