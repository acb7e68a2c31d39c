package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/factory"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/zoobzio/clockz"
)

const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidState   = "INVALID_STATE"
	CodeExpired        = "EXPIRED"
	CodeWindowExpired  = "WINDOW_EXPIRED"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodeSignature      = "SIGNATURE_ERROR"
	CodeNotRunning     = "NOT_RUNNING"
	CodeCapacity       = "CAPACITY_EXCEEDED"
	CodeTimeout        = "TIMEOUT"
	CodeConflict       = "CONFLICT"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodePaymentFailed  = "PAYMENT_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
	internalErrMessage = "internal server error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrValidation wraps more specific causes such as a missing
// gateway, so the first match wins.
var errorMappings = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, CodeValidation},
	{plugin.ErrInvalidValues, http.StatusBadRequest, CodeValidation},
	{service.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrExpired, http.StatusGone, CodeExpired},
	{service.ErrWindowExpired, http.StatusUnprocessableEntity, CodeWindowExpired},
	{service.ErrInvalidAmount, http.StatusUnprocessableEntity, CodeInvalidAmount},
	{service.ErrSignature, http.StatusUnauthorized, CodeSignature},
	{service.ErrNotRunning, http.StatusConflict, CodeNotRunning},
	{service.ErrCapacity, http.StatusTooManyRequests, CodeCapacity},
	{service.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout},
	{service.ErrConflict, http.StatusConflict, CodeConflict},
	{service.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists},
	{service.ErrInvalidState, http.StatusConflict, CodeInvalidState},
}

func statusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// responder writes the JSON envelope shared by every controller.
type responder struct {
	clock  clockz.Clock
	logger logrus.FieldLogger
}

func newResponder(module string, clock clockz.Clock) responder {
	if clock == nil {
		clock = clockz.RealClock
	}
	return responder{clock: clock, logger: factory.NewModuleLogger(module)}
}

func (r responder) writeSuccess(ctx echo.Context, statusCode int, data interface{}, message string) error {
	return ctx.JSON(statusCode, types.NewSuccessResponse(data, message, r.clock.Now()))
}

func (r responder) writeError(ctx echo.Context, statusCode int, code, message string) error {
	return ctx.JSON(statusCode, types.NewErrorResponse(code, message, r.clock.Now()))
}

func (r responder) writeValidationError(ctx echo.Context, message string) error {
	return r.writeError(ctx, http.StatusBadRequest, CodeValidation, message)
}

// writeServiceError maps a service error onto its status and code. Unknown
// errors are logged and hidden behind a generic message.
func (r responder) writeServiceError(ctx echo.Context, err error, action string) error {
	statusCode, code := statusForError(err)
	if statusCode == http.StatusInternalServerError {
		factory.LoggerWithContext(r.logger, ctx).WithError(err).Error(action + " failed")
		return r.writeError(ctx, statusCode, code, internalErrMessage)
	}
	return r.writeError(ctx, statusCode, code, err.Error())
}
