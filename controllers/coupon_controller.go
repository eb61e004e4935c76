package controllers

import (
	"net/http"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type CouponController struct {
	coupons *services.CouponService
}

func NewCouponController(coupons *services.CouponService) *CouponController {
	return &CouponController{coupons: coupons}
}

func (h *CouponController) Validate(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	coupon, err := h.coupons.Validate(c.Request.Context(), req.CouponCode)
	if err != nil {
		if services.IsKind(err, services.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"message": "Coupon is valid",
		"coupon": gin.H{
			"code":           coupon.Code,
			"discount_type":  coupon.DiscountType,
			"discount_value": coupon.DiscountValue,
			"description":    coupon.Description,
		},
	})
}

func (h *CouponController) Create(c *gin.Context) {
	var req services.NewCoupon
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	coupon, err := h.coupons.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}
