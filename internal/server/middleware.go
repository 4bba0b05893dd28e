package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
	obscontext "github.com/smallbiznis/tollgate/internal/observability/context"
)

const (
	contextUserIDKey   = "user_id"
	contextAuthTypeKey = "auth_type"
	contextRawTokenKey = "raw_token"
)

type ActorType string

const (
	ActorAccessToken ActorType = "access_token"
	ActorAPIKey      ActorType = "api_key"
)

// AccessTokenRequired admits only access tokens. Refresh tokens and API keys are rejected.
func (s *Server) AccessTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextRawTokenKey, raw)
		setPrincipal(c, userID, ActorAccessToken)
		c.Next()
	}
}

// AccessTokenOrAPIKey admits an access token or an issued API key.
func (s *Server) AccessTokenOrAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if strings.HasPrefix(raw, apikeydomain.KeyPrefix) {
			userID, err := s.apiKeySvc.Authenticate(c.Request.Context(), raw)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			setPrincipal(c, userID, ActorAPIKey)
			c.Next()
			return
		}

		userID, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextRawTokenKey, raw)
		setPrincipal(c, userID, ActorAccessToken)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setPrincipal(c *gin.Context, userID snowflake.ID, actor ActorType) {
	c.Set(contextUserIDKey, userID)
	c.Set(contextAuthTypeKey, string(actor))
	ctx := obscontext.WithPrincipal(c.Request.Context(), userID.String(), string(actor))
	c.Request = c.Request.WithContext(ctx)
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id != 0
}
