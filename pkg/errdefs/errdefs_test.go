package errdefs

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailable(t *testing.T) {
	t.Run("wraps cause and sentinel", func(t *testing.T) {
		err := Unavailable(io.ErrUnexpectedEOF, "bulk index")

		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Contains(t, err.Error(), "bulk index")
		assert.True(t, Retryable(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Unavailable(nil, "noop"))
	})
}

func TestConstructors(t *testing.T) {
	assert.ErrorIs(t, Query("similarity_top_k must be >= 1, got %d", 0), ErrQuery)
	assert.ErrorIs(t, DimensionMismatch(3, 2), ErrDimensionMismatch)
	assert.ErrorIs(t, NotFound("document", "a"), ErrNotFound)
	assert.ErrorIs(t, Duplicate("document", "a"), ErrDuplicate)

	assert.Equal(t, "embedding dimension mismatch: want 3, got 2", DimensionMismatch(3, 2).Error())
	assert.False(t, Retryable(Query("bad")))
	assert.False(t, Retryable(errors.New("other")))
}
