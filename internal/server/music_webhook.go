package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleMusicWebhook acknowledges every callback that carries a task id and a
// valid signature, whether or not it matched an order.
func (s *Server) HandleMusicWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhook.HandleMusicCallback(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.OrderID != "" {
		c.Set(contextOrderIDKey, result.OrderID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
