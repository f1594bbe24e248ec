package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesWrapped(t *testing.T) {
	errNotFound := NewError(http.StatusNotFound, "detection run not found")
	wrapped := fmt.Errorf("query surface: %w", errNotFound)

	assert.True(t, errors.Is(wrapped, errNotFound))
	assert.False(t, errors.Is(wrapped, NewError(http.StatusNotFound, "something else")))
	assert.False(t, errors.Is(wrapped, NewError(http.StatusConflict, "detection run not found")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(NewError(http.StatusBadRequest, "bad"), 500))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("plain"), http.StatusInternalServerError))
}
