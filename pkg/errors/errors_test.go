package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwraps(t *testing.T) {
	base := Transient("marketplace fetch failed", errors.New("connection reset"))
	wrapped := fmt.Errorf("run aborted: %w", base)

	assert.Equal(t, KindTransient, KindOf(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Store("update failed", errors.New("connection refused"))

	assert.Equal(t, "update failed: connection refused", err.Error())
	assert.Equal(t, "not here", NotFound("not here").Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Auth("session expired", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsRecordFailure(t *testing.T) {
	assert.True(t, IsRecordFailure(Transient("t", nil)))
	assert.True(t, IsRecordFailure(Auth("a", nil)))
	assert.True(t, IsRecordFailure(NotFound("n")))
	assert.True(t, IsRecordFailure(SurfaceDrift("s", nil)))
	assert.True(t, IsRecordFailure(DuplicateRisk("d", nil)))

	assert.False(t, IsRecordFailure(Store("db gone", nil)))
	assert.False(t, IsRecordFailure(errors.New("plain")))
	assert.False(t, IsRecordFailure(Internal(errors.New("x"))))
}
