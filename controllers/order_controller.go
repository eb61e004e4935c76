package controllers

import (
	"net/http"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

func (h *OrderController) List(c *gin.Context) {
	defer recordOperation(c, "list")
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orders, err := h.orders.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderController) Get(c *gin.Context) {
	defer recordOperation(c, "details")
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), userID, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
