package controllers

import (
	"net/http"

	"prago-api/models"
	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type CartController struct {
	cart *services.CartService
}

func NewCartController(cart *services.CartService) *CartController {
	return &CartController{cart: cart}
}

type cartItemRequest struct {
	ItemType string `json:"item_type"`
	ItemID   int64  `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"omitempty,min=1"`
}

func (r cartItemRequest) ref() (models.ItemRef, error) {
	kind, err := models.ParseItemKind(r.ItemType)
	if err != nil {
		return models.ItemRef{}, err
	}
	return models.ItemRef{Kind: kind, ID: r.ItemID}, nil
}

type couponRequest struct {
	CouponCode string `json:"coupon_code" binding:"required"`
}

type checkoutRequest struct {
	CallbackURL string `json:"callback_url" binding:"omitempty,url"`
}

func (h *CartController) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.cart.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CartController) Add(c *gin.Context) {
	defer recordOperation(c, "cart_add")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ref, err := req.ref()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item type"})
		return
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	view, err := h.cart.Add(c.Request.Context(), userID, ref, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart", "cart": view})
}

func (h *CartController) Remove(c *gin.Context) {
	defer recordOperation(c, "cart_remove")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ref, err := req.ref()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item type"})
		return
	}

	view, err := h.cart.Remove(c.Request.Context(), userID, ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "cart": view})
}

func (h *CartController) ApplyCoupon(c *gin.Context) {
	defer recordOperation(c, "apply_coupon")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	view, err := h.cart.ApplyCoupon(c.Request.Context(), userID, req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon applied", "cart": view})
}

func (h *CartController) RemoveCoupon(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.cart.RemoveCoupon(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon removed", "cart": view})
}

// Checkout turns the cart into an order and returns the gateway URL to pay it.
func (h *CartController) Checkout(c *gin.Context) {
	defer recordOperation(c, "checkout")
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	pay, err := h.cart.Checkout(c.Request.Context(), userID, req.CallbackURL, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pay)
}
