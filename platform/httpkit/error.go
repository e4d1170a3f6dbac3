package httpkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pipelineengine/platform/apperr"
)

// CodedErrorResponse is the §7 error envelope: a machine-readable code
// alongside the human-readable message, with optional details.
type CodedErrorResponse struct {
	Error CodedError `json:"error"`
}

type CodedError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// HandleError writes err to the response if it is non-nil and reports
// whether it did. Handlers call it as `if httpkit.HandleError(c, err) { return }`
// right after a service call, the same shape the teacher's handlers use.
//
// An *apperr.Error maps to its own HTTPStatus()/Code/Message; any other
// error is treated as an unexpected internal failure and never echoes its
// message back to the client.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), CodedErrorResponse{
			Error: CodedError{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
		return true
	}

	c.JSON(http.StatusInternalServerError, CodedErrorResponse{
		Error: CodedError{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"},
	})
	return true
}
