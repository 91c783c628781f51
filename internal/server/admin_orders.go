package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/songgift/internal/delivery"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	"github.com/smallbiznis/songgift/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status         string `form:"status"`
		DeliveryStatus string `form:"delivery_status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrderRequest{
		PageToken:      query.PageToken,
		PageSize:       query.PageSize,
		Status:         strings.TrimSpace(query.Status),
		DeliveryStatus: strings.TrimSpace(query.DeliveryStatus),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Orders,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	id := tagOrder(c)
	order, err := s.orderSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) RetryOrder(c *gin.Context) {
	id := tagOrder(c)
	order, err := s.operator.RetryOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("order generation retry requested", zap.String("order_id", id))
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type resendOrderRequest struct {
	Email    *bool `json:"email"`
	WhatsApp *bool `json:"whatsapp"`
}

// resendOptions forces both channels when the body names neither.
func (r resendOrderRequest) options() delivery.DeliverOptions {
	if r.Email == nil && r.WhatsApp == nil {
		return delivery.DeliverOptions{ForceEmail: true, ForceWhatsApp: true}
	}
	return delivery.DeliverOptions{
		ForceEmail:    r.Email != nil && *r.Email,
		ForceWhatsApp: r.WhatsApp != nil && *r.WhatsApp,
	}
}

func (s *Server) ResendOrder(c *gin.Context) {
	id := tagOrder(c)

	var req resendOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.operator.ResendOrder(c.Request.Context(), id, req.options())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("order resend requested",
		zap.String("order_id", id),
		zap.Bool("delivered", result.Delivered),
		zap.String("reason", result.Reason),
	)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListOrderEvents(c *gin.Context) {
	id := tagOrder(c)
	orderID, err := snowflake.ParseString(id)
	if err != nil || orderID == 0 {
		AbortWithError(c, orderdomain.ErrInvalidID)
		return
	}
	if _, err := s.orderSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.eventSvc.List(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}
