package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
)

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": createOrderResponse{
		ID:     order.ID.String(),
		Status: string(order.Status),
	}})
}

func (s *Server) ConfirmOrder(c *gin.Context) {
	id := tagOrder(c)
	order, err := s.orderSvc.Confirm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": createOrderResponse{
		ID:     order.ID.String(),
		Status: string(order.Status),
	}})
}

// GetOrderStatus is the customer-facing view; it never carries failure detail.
func (s *Server) GetOrderStatus(c *gin.Context) {
	id := tagOrder(c)
	view, err := s.orderSvc.GetPublicView(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
