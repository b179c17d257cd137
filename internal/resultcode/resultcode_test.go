package resultcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"decode", fmt.Errorf("decode jpeg: %w", ErrDecode), DecodeError},
		{"no face", ErrNoFace, NoFaceDetected},
		{"dimension", fmt.Errorf("compare: %w", ErrDimensionMismatch), DimensionMismatch},
		{"not found", NotFoundf("group %s", "x"), NotFound},
		{"validation", Validationf("page must be >= 1"), ValidationError},
		{"timeout sentinel", ErrTimeout, Timeout},
		{"context deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), Timeout},
		{"unknown", errors.New("boom"), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Timeout.Retryable())
	assert.True(t, Internal.Retryable())
	assert.False(t, ValidationError.Retryable())
	assert.False(t, NotFound.Retryable())
	assert.False(t, OK.Retryable())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ValidationError.HTTPStatus())
	assert.Equal(t, http.StatusGatewayTimeout, Timeout.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal.HTTPStatus())
}
