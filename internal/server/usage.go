package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tollgate/internal/money"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
)

type UsageRecordResponse struct {
	ID               string       `json:"id"`
	PromptTokens     int64        `json:"prompt_tokens"`
	CompletionTokens int64        `json:"completion_tokens"`
	TotalTokens      int64        `json:"total_tokens"`
	Cost             money.Amount `json:"cost"`
	Model            string       `json:"model,omitempty"`
	CreatedAt        string       `json:"created_at"`
}

type UsageResponse struct {
	Usage         []UsageRecordResponse `json:"usage"`
	NextPageToken string                `json:"next_page_token,omitempty"`
	HasMore       bool                  `json:"has_more"`
}

// ListUsage returns the caller's usage records oldest first. Without page
// parameters every record is returned.
func (s *Server) ListUsage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if page.PageSize == 0 && page.PageToken == "" {
		records, err := s.walletSvc.ListUsage(ctx, userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, UsageResponse{Usage: usageResponses(records)})
		return
	}

	records, info, err := s.walletSvc.ListUsagePage(ctx, userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, UsageResponse{
		Usage:         usageResponses(records),
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	})
}

func usageResponses(records []walletdomain.UsageRecord) []UsageRecordResponse {
	out := make([]UsageRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, UsageRecordResponse{
			ID:               r.ID.String(),
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			TotalTokens:      r.TotalTokens,
			Cost:             r.Cost,
			Model:            r.Model,
			CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
