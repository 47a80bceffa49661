package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/auth"
)

const (
	// ContextKeyUID is the context key for storing the authenticated uid.
	ContextKeyUID = "uid"
	// ContextKeyNameHint is the context key for storing the token's display name hint.
	ContextKeyNameHint = "name_hint"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(gateway *auth.Gateway, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))

		identity, err := gateway.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthorized request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: auth.Code(err)})
			return
		}

		c.Set(ContextKeyUID, identity.UID)
		c.Set(ContextKeyNameHint, identity.NameHint)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
