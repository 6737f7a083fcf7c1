package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"z-genstudio-api/internal/application/action"
	"z-genstudio-api/internal/application/attachment"
	"z-genstudio-api/internal/application/conversation"
	"z-genstudio-api/internal/application/credit"
	"z-genstudio-api/internal/infrastructure/wallet"
	"z-genstudio-api/internal/interfaces/http/dto"
	apperrors "z-genstudio-api/pkg/errors"
	"z-genstudio-api/pkg/logger"
)

var errorTable = []struct {
	target error
	app    *apperrors.AppError
}{
	{conversation.ErrSessionNotFound, apperrors.ErrSessionNotFound},
	{conversation.ErrTurnNotFound, apperrors.ErrTurnNotFound},
	{conversation.ErrBusy, apperrors.ErrBusy},
	{conversation.ErrEmptyMessage, apperrors.ErrInvalidParam},
	{conversation.ErrUnauthenticated, apperrors.ErrUnauthorized},
	{conversation.ErrNoPendingAction, apperrors.ErrIllegalTransition},
	{conversation.ErrTurnTerminal, apperrors.ErrIllegalTransition},
	{conversation.ErrNotRetryable, apperrors.ErrNotRetryable},
	{action.ErrIllegalTransition, apperrors.ErrIllegalTransition},
	{action.ErrInvalidSelection, apperrors.ErrInvalidParam},
	{credit.ErrInsufficientCredit, apperrors.ErrInsufficientCredits},
	{attachment.ErrIndexOutOfRange, apperrors.ErrInvalidParam},
	{wallet.ErrWalletNotFound, apperrors.ErrNotFound},
}

// toAppError 把应用层哨兵错误映射为带错误码的 AppError
func toAppError(err error) *apperrors.AppError {
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err)
	}
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.app.WithError(err)
		}
	}
	return apperrors.ErrInternalError.WithError(err)
}

// renderError 写出错误响应，5xx 不向客户端暴露底层错误
func renderError(c *gin.Context, err error) {
	app := toAppError(err)
	detail := &dto.ErrorDetail{ErrorCode: string(app.Code)}
	if app.HTTPStatus < http.StatusInternalServerError {
		detail.Details = err.Error()
	} else {
		logger.Error(c.Request.Context(), "request failed", err, "route", c.FullPath())
	}
	dto.ErrorWithDetail(c, app.HTTPStatus, app.Message, detail)
}
