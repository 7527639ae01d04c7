package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/apperr"
)

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeUnauthorized    = 40100
	CodeForbidden       = 40300
	CodeNotFound        = 40400
	CodeConflict        = 40900
	CodeIncompleteData  = 42200
	CodeInternalServer  = 50000
	CodeRenderFailed    = 50001
	CodeUpstreamFailure = 50300
)

type APIResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

func JSON(c *gin.Context, httpStatus int, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:      CodeOK,
		Message:   "ok",
		Data:      data,
		RequestID: c.GetString("request_id"),
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:      code,
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}

// FromError writes the envelope for err using the shared error taxonomy.
// data is attached when non-nil so callers can report partial progress.
func FromError(c *gin.Context, err error, data interface{}) {
	status := apperr.HTTPStatus(err)
	c.JSON(status, APIResponse{
		Code:      codeFor(err, status),
		Message:   messageFor(err, status),
		Data:      data,
		RequestID: c.GetString("request_id"),
	})
}

func codeFor(err error, status int) int {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusUnprocessableEntity:
		return CodeIncompleteData
	case http.StatusServiceUnavailable:
		return CodeUpstreamFailure
	}
	if errors.Is(err, apperr.ErrRender) || errors.Is(err, apperr.ErrTemplate) {
		return CodeRenderFailed
	}
	return CodeInternalServer
}

// Internal errors are not echoed back to callers.
func messageFor(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
