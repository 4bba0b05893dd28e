package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
)

type SecretResponse struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

// CreateSecret issues an API key. The plaintext is only ever returned here.
func (s *Server) CreateSecret(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	secret, err := s.apiKeySvc.Create(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SecretResponse{
		KeyID:     secret.KeyID,
		SecretKey: secret.SecretKey,
	})
}

func (s *Server) ListSecrets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if keys == nil {
		keys = []apikeydomain.Response{}
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (s *Server) RevokeSecret(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), userID, c.Param("key_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "revoked"})
}
