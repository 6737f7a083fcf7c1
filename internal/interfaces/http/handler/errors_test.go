package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"z-genstudio-api/internal/application/action"
	"z-genstudio-api/internal/application/conversation"
	"z-genstudio-api/internal/application/credit"
	apperrors "z-genstudio-api/pkg/errors"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   apperrors.ErrorCode
		status int
	}{
		{"session", conversation.ErrSessionNotFound, apperrors.CodeSessionNotFound, http.StatusNotFound},
		{"busy", conversation.ErrBusy, apperrors.CodeBusy, http.StatusConflict},
		{"wrapped transition", fmt.Errorf("%w: proposed -> complete", action.ErrIllegalTransition), apperrors.CodeIllegalTransition, http.StatusConflict},
		{"invalid edit", fmt.Errorf("%w: model", action.ErrInvalidSelection), apperrors.CodeInvalidParam, http.StatusBadRequest},
		{"credit", credit.InsufficientCreditError{Required: 5, Available: 1}, apperrors.CodeInsufficientCredits, http.StatusPaymentRequired},
		{"app error passthrough", apperrors.ErrTooManyRequests, apperrors.CodeTooManyRequests, http.StatusTooManyRequests},
		{"unknown", errors.New("disk on fire"), apperrors.CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := toAppError(tt.err)
			assert.Equal(t, tt.code, app.Code)
			assert.Equal(t, tt.status, app.HTTPStatus)
		})
	}
}
