package factory

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// NewModuleLogger returns the standard logger tagged with the module that
// owns it.
func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.StandardLogger().WithField("module", module)
}

// LoggerWithContext adds the request id, taken from the request or, failing
// that, from the id the RequestID middleware wrote on the response.
func LoggerWithContext(logger logrus.FieldLogger, ctx echo.Context) logrus.FieldLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ctx == nil {
		return logger
	}

	requestID := ctx.Request().Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = ctx.Response().Header().Get(echo.HeaderXRequestID)
	}
	if requestID == "" {
		return logger
	}
	return logger.WithField("request_id", requestID)
}
