package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxWebhookBytes bounds the payload read from the processor.
const maxWebhookBytes = 1 << 20

func (s *Server) HandleProcessorWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Receive(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"event_id":  result.EventID,
		"duplicate": result.Duplicate,
	})
}
