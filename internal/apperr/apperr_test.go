package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedCodes(t *testing.T) {
	err := fmt.Errorf("mark: %w", New(ImmutableConflict, "already marked"))
	assert.True(t, Is(err, ImmutableConflict))
	assert.False(t, Is(err, Conflict))
	assert.True(t, errors.Is(err, Sentinel(ImmutableConflict)))
	assert.Equal(t, ImmutableConflict, CodeOf(err))
	assert.Equal(t, Internal, CodeOf(errors.New("plain")))
}

func TestBodyIncludesDetails(t *testing.T) {
	status, body := Body(New(AccountBlocked, "account blocked").With("blocked_reason", "fees"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, AccountBlocked, body["code"])
	assert.Equal(t, "fees", body["blocked_reason"])
}

func TestBodyHidesUnknownErrors(t *testing.T) {
	status, body := Body(errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body["error"])
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base := New(Validation, "bad")
	_ = base.With("field", "name")
	assert.Nil(t, base.Details)
}
