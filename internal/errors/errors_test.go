package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize_FindsWrappedError(t *testing.T) {
	inner := NewInvariantError("carol", "rejoin reset on missing row")
	wrapped := fmt.Errorf("apply plan: %w", inner)

	cat := Categorize(wrapped)
	assert.Same(t, inner, cat)
	assert.True(t, IsInvariantViolation(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestCategorize_Plain(t *testing.T) {
	cat := Categorize(stderrors.New("oops"))
	assert.Equal(t, CategorySystem, cat.Category)
	assert.Equal(t, http.StatusInternalServerError, cat.StatusCode)
	assert.Nil(t, Categorize(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"source", NewSourceError("condenser_api.get_followers", stderrors.New("eof")), true},
		{"database", NewDatabaseError("upsert member", stderrors.New("conn reset")), true},
		{"validation", NewInvalidParameterError("date", "bad format"), false},
		{"invariant", NewInvariantError("x", "boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetHTTPStatusCode(NewNotFoundError("member", "bob")))
	assert.Equal(t, http.StatusConflict, GetHTTPStatusCode(NewRunInProgressError("run-1")))
	assert.True(t, IsUserError(NewInvalidUsernameError("-bad")))
	assert.True(t, IsConflict(NewRunInProgressError("run-1")))

	resp := NewNotFoundError("member", "bob").ToResponse()
	assert.Equal(t, "NOT_FOUND", resp.Code)
	assert.Equal(t, "bob", resp.Details["id"])
}
