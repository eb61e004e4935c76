package controllers

import (
	"net/http"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type SubscriptionController struct {
	subs *services.SubscriptionService
}

func NewSubscriptionController(subs *services.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subs: subs}
}

type purchaseRequest struct {
	PlanID      int64  `json:"plan_id" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"omitempty,url"`
	CouponCode  string `json:"coupon_code"`
}

func (h *SubscriptionController) ListPlans(c *gin.Context) {
	plans, err := h.subs.ListPlans(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *SubscriptionController) GetPlan(c *gin.Context) {
	plan, err := h.subs.GetPlan(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *SubscriptionController) Mine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	subs, err := h.subs.Mine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *SubscriptionController) MineDetail(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	sub, err := h.subs.MineDetail(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *SubscriptionController) Active(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sub, err := h.subs.Active(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Purchase buys a plan directly, bypassing the cart.
func (h *SubscriptionController) Purchase(c *gin.Context) {
	defer recordOperation(c, "subscription_purchase")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	pay, err := h.subs.Purchase(c.Request.Context(), userID, services.PurchaseRequest{
		PlanID:      req.PlanID,
		CallbackURL: req.CallbackURL,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pay)
}
