package controllers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every controller mounted by RegisterRoutes.
type Handlers struct {
	Auth          *AuthController
	Catalog       *CatalogController
	Cart          *CartController
	Coupons       *CouponController
	Payments      *PaymentController
	Orders        *OrderController
	Subscriptions *SubscriptionController
	Enrollments   *EnrollmentController
	Tickets       *TicketController
	Posts         *PostController
}

// Guards are the middlewares applied per route group.
type Guards struct {
	Auth      gin.HandlerFunc
	Staff     gin.HandlerFunc
	RateLimit gin.HandlerFunc
}

func RegisterRoutes(r gin.IRouter, h *Handlers, g Guards) {
	auth := r.Group("/auth")
	{
		auth.POST("/otp/request/", g.RateLimit, h.Auth.RequestOTP)
		auth.POST("/otp/verify/", g.RateLimit, h.Auth.VerifyOTP)
		auth.POST("/signup/", g.RateLimit, h.Auth.Signup)
		auth.POST("/login/", g.RateLimit, h.Auth.Login)
		auth.POST("/google/", g.RateLimit, h.Auth.Google)
		auth.POST("/token/refresh/", h.Auth.Refresh)
		auth.GET("/check-username/", h.Auth.CheckUsername)
		auth.POST("/password/reset/", g.RateLimit, h.Auth.ResetPassword)
		auth.GET("/me/", g.Auth, h.Auth.Me)
		auth.POST("/password/reset-request/", g.Auth, h.Auth.RequestPasswordReset)
	}

	r.GET("/courses/", h.Catalog.ListCourses)
	r.GET("/courses/:slug", h.Catalog.GetCourse)
	r.GET("/categories/", h.Catalog.Categories)
	r.GET("/posts/", h.Posts.List)
	r.GET("/posts/:slug", h.Posts.Get)
	r.GET("/subscriptions/plans/", h.Subscriptions.ListPlans)
	r.GET("/subscriptions/plans/:slug", h.Subscriptions.GetPlan)
	r.POST("/coupons/validate", h.Coupons.Validate)

	// The gateway redirects the buyer here without credentials.
	r.GET("/payment/zarinpal/verify/", h.Payments.Verify)

	authed := r.Group("/", g.Auth)
	{
		authed.GET("/cart/", h.Cart.Get)
		authed.POST("/cart/add/", h.Cart.Add)
		authed.POST("/cart/remove/", h.Cart.Remove)
		authed.POST("/cart/apply-coupon/", h.Cart.ApplyCoupon)
		authed.POST("/cart/remove-coupon/", h.Cart.RemoveCoupon)
		authed.POST("/cart/checkout/", h.Cart.Checkout)

		authed.POST("/payment/zarinpal/request/", h.Payments.Request)

		authed.GET("/orders/", h.Orders.List)
		authed.GET("/orders/:number", h.Orders.Get)

		authed.GET("/subscriptions/mine/", h.Subscriptions.Mine)
		authed.GET("/subscriptions/mine/:id", h.Subscriptions.MineDetail)
		authed.GET("/subscriptions/active/", h.Subscriptions.Active)
		authed.POST("/subscription/purchase/", h.Subscriptions.Purchase)

		authed.GET("/enrollments/", h.Enrollments.List)
		authed.GET("/enrollments/:slug", h.Enrollments.Detail)
		authed.POST("/enrollments/:slug/", h.Enrollments.Enroll)
		authed.PATCH("/enrollments/:slug/progress/", h.Enrollments.UpdateProgress)

		authed.GET("/tickets/", h.Tickets.List)
		authed.POST("/tickets/", h.Tickets.Open)
		authed.GET("/tickets/active-count/", h.Tickets.ActiveCount)
		authed.GET("/tickets/:number", h.Tickets.Get)
		authed.PATCH("/tickets/:number", h.Tickets.SetStatus)
		authed.POST("/tickets/:number/messages/", h.Tickets.Reply)
	}

	admin := r.Group("/admin", g.Auth, g.Staff)
	{
		admin.POST("/coupons", h.Coupons.Create)
		admin.POST("/categories/", h.Catalog.CreateCategory)
		admin.POST("/courses/", h.Catalog.CreateCourse)
		admin.POST("/courses/:id/episodes/", h.Catalog.AddEpisode)
		admin.POST("/posts/", h.Posts.Create)
		admin.POST("/users/:id/roles/", h.Auth.GrantRole)
		admin.DELETE("/users/:id/roles/:role", h.Auth.RevokeRole)
	}
}
