package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/listenup-reader/internal/errors"
)

type openRequest struct {
	BookID   string  `json:"book_id" validate:"required"`
	BookPath string  `json:"book_path" validate:"required"`
	Rate     float64 `json:"rate,omitempty" validate:"omitempty,gt=0,lte=4"`
}

func TestValidator_Validate_Passes(t *testing.T) {
	v := New()

	err := v.Validate(openRequest{BookID: "bk-1", BookPath: "/books/one.epub", Rate: 1.25})
	assert.NoError(t, err)
}

func TestValidator_Validate_CollectsFieldErrors(t *testing.T) {
	v := New()

	err := v.Validate(openRequest{Rate: 9})
	require.Error(t, err)
	require.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	var derr *domainerrors.Error
	require.True(t, domainerrors.As(err, &derr))

	fields, ok := derr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", fields["book_id"])
	assert.Equal(t, "is required", fields["book_path"])
	assert.Contains(t, fields["rate"], "must be less than or equal to")
}

func TestValidator_Validate_UsesJSONTagNames(t *testing.T) {
	v := New()

	err := v.Validate(openRequest{BookPath: "/books/one.epub"})
	require.Error(t, err)

	var derr *domainerrors.Error
	require.True(t, domainerrors.As(err, &derr))
	fields := derr.Details.(map[string]string)
	_, hasJSONName := fields["book_id"]
	_, hasGoName := fields["BookID"]
	assert.True(t, hasJSONName)
	assert.False(t, hasGoName)
}
