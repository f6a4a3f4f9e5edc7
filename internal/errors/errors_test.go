package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"gouncertain/domain/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"rate", core.NewDropoutRateError(1.5), CodeInvalidInput, http.StatusBadRequest},
		{"unknown strategy", fmt.Errorf("%w: x", core.ErrUnknownStrategy), CodeInvalidInput, http.StatusBadRequest},
		{"kernel", fmt.Errorf("priming layer 0: %w", core.ErrInvalidKernel), CodeNumericError, http.StatusUnprocessableEntity},
		{"singular", core.ErrSingularCovariance, CodeNumericError, http.StatusUnprocessableEntity},
		{"exhausted", core.ErrSequenceExhausted, CodeStateError, http.StatusUnprocessableEntity},
		{"canceled", fmt.Errorf("run 3: %w", context.Canceled), CodeCanceled, http.StatusRequestTimeout},
		{"missing run", fmt.Errorf("%w: abc", core.ErrRunNotFound), CodeNotFound, http.StatusNotFound},
		{"app error", InvalidInput("bad body"), CodeInvalidInput, http.StatusBadRequest},
		{"plain", fmt.Errorf("boom"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Classify(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCode(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))

	err := Wrap(core.ErrSingularCovariance, "estimate")
	assert.Equal(t, CodeNumericError, GetCode(err))
	assert.ErrorIs(t, err, core.ErrSingularCovariance)

	err = Wrapf(ConfigInvalid("PORT is required"), "load %s", "server")
	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "load server: PORT is required", err.Error())

	err = WithCode(CodeInvalidInput, fmt.Errorf("bad"))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}
