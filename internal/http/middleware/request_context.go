package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MartinPaviot/Nareo-sub004/internal/http/response"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/ctxutil"
)

const (
	headerUserID    = "X-User-Id"
	headerSessionID = "X-Session-Id"
)

var errMissingUser = errors.New("missing or invalid user id")

// AttachRequestContext resolves the caller identity forwarded by the gateway.
// EventSource clients cannot set headers, so the query string is consulted
// as a fallback.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := parseID(c.GetHeader(headerUserID), c.Query("user_id"))
		if userID != uuid.Nil {
			sessionID := parseID(c.GetHeader(headerSessionID), c.Query("session_id"))
			if sessionID == uuid.Nil {
				sessionID = uuid.New()
			}
			ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
				UserID:    userID,
				SessionID: sessionID,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a resolved caller.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingUser)
			c.Abort()
			return
		}
		c.Next()
	}
}

func parseID(values ...string) uuid.UUID {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}
