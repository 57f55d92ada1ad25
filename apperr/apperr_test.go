package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("listing: %w", Missing("App not found"))

	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Forbidden))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Unknown))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	cause := errors.New("disk quota exceeded on /var/lib")

	assert.Equal(t, GenericMessage, PublicMessage(StorageErr("save file", cause)))
	assert.Equal(t, GenericMessage, PublicMessage(cause))
	assert.Equal(t, "Invalid app id", PublicMessage(Invalid("Invalid app id")))
	assert.ErrorIs(t, StorageErr("save file", cause), cause)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound))
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(PayloadTooLarge))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Storage))
	assert.Equal(t, http.StatusOK, HTTPStatus(Validation))
}
