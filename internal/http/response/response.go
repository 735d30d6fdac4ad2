package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
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
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError uses the status and code carried by an *apierr.Error.
// Anything else is reported as a 500 without leaking its message.
func RespondAPIError(c *gin.Context, err error) {
	var api *apierr.Error
	if errors.As(err, &api) && api.Status != 0 {
		RespondError(c, api.Status, api.Code, api)
		return
	}
	RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal server error"))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
