package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errWidgetMissing = NotFound("widget not found")

func TestKindOf_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("failed to load widget 7: %w", errWidgetMissing)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "widget not found", Message(err))
	assert.True(t, errors.Is(err, errWidgetMissing))
}

func TestKindOf_Unclassified(t *testing.T) {
	err := errors.New("pq: connection reset")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", Message(err))
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("unknown permission ids: %v", []int64{9, 10})
	assert.Equal(t, KindInvalid, err.Kind)
	assert.Equal(t, "unknown permission ids: [9 10]", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", Kind(99).String())
}
