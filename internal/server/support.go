package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RecordSupportChat meters one support-bot conversation against the monthly
// counter. The chat itself runs against the external provider.
func (s *Server) RecordSupportChat(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.usageSvc.IncrementAIChats(ctx, actor.OrgID, 1); err != nil {
		AbortWithError(c, err)
		return
	}
	record, err := s.usageSvc.GetUsage(ctx, actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"ai_chats_this_month": record.AIChatsThisMonth,
		"period_end":          record.PeriodEnd,
	}})
}
