package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/tollgate/internal/gateway/domain"
)

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate runs one metered generation. Missing prompts are rejected by the gateway
// before funds are checked so the failure carries no side effects.
func (s *Server) Generate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.gatewaySvc.Generate(c.Request.Context(), gatewaydomain.GenerateRequest{
		UserID: userID,
		Prompt: req.Prompt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
