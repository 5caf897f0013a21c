package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes an *apierr.Error with its own status and code.
// Internal errors keep their detail out of the response body.
func RespondAPIError(c *gin.Context, ae *apierr.Error) {
	if ae == nil {
		RespondError(c, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := ae.Code
	if code == "" {
		code = "internal_error"
	}
	if status >= 500 {
		_ = c.Error(ae)
		c.JSON(status, ErrorEnvelope{Error: APIError{Message: http.StatusText(status), Code: code}})
		return
	}
	RespondError(c, status, code, ae.Err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
