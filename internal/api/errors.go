package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// apiError converts a domain error into the status-bearing error the typed
// layer renders. Unknown errors become 500 without leaking their message.
func apiError(err error) error {
	var derr *errors.Error
	if errors.As(err, &derr) {
		return huma.NewError(derr.HTTPStatus(), derr.Message)
	}
	return huma.NewError(http.StatusInternalServerError, "internal error")
}
