package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/pocket/internal/fault"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps an engine error kind to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), fault.IsInvalidArgument(err):
		return http.StatusBadRequest, "invalid_request_error"
	case fault.IsInvalidHandle(err):
		return http.StatusNotFound, "not_found_error"
	case fault.IsAlreadyStreaming(err):
		return http.StatusConflict, "conflict_error"
	case fault.IsOutOfMemory(err):
		return http.StatusInsufficientStorage, "out_of_memory_error"
	case fault.IsFormat(err):
		return http.StatusUnprocessableEntity, "model_format_error"
	case fault.IsIO(err):
		return http.StatusBadRequest, "model_io_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeFault(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return writeError(c, status, errType, err.Error(), "", faultCode(err))
}

func faultCode(err error) string {
	if k := fault.KindOf(err); k != nil {
		return k.Error()
	}
	return ""
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}
