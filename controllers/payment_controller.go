package controllers

import (
	"net/http"

	"prago-api/middlewares"
	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	payments *services.Payments
}

func NewPaymentController(payments *services.Payments) *PaymentController {
	return &PaymentController{payments: payments}
}

type paymentRequest struct {
	OrderID     int64  `json:"order_id" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"omitempty,url"`
}

// Request starts a new gateway payment for an existing unpaid order.
func (h *PaymentController) Request(c *gin.Context) {
	defer recordOperation(c, "payment_request")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	pay, err := h.payments.Initiate(c.Request.Context(), userID, req.OrderID, req.CallbackURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pay)
}

// Verify is the gateway's redirect target. It always answers with a redirect
// to the frontend.
func (h *PaymentController) Verify(c *gin.Context) {
	outcome := h.payments.Verify(c.Request.Context(), services.VerifyParams{
		Authority:     c.Query("Authority"),
		Status:        c.Query("Status"),
		OrderNumber:   c.Query("order_id"),
		TransactionID: c.Query("transaction_id"),
	})
	middlewares.RecordPaymentVerification(outcome.Status)
	c.Redirect(http.StatusFound, outcome.RedirectURL())
}
