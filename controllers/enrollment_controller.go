package controllers

import (
	"net/http"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	enrollments *services.EnrollmentService
}

func NewEnrollmentController(enrollments *services.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{enrollments: enrollments}
}

type progressRequest struct {
	CompletionPercentage *int `json:"completion_percentage" binding:"required"`
}

func (h *EnrollmentController) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.enrollments.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *EnrollmentController) Detail(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.enrollments.Detail(c.Request.Context(), userID, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *EnrollmentController) Enroll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, created, err := h.enrollments.Enroll(c.Request.Context(), userID, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "You are already enrolled in this course", "enrollment": view})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Successfully enrolled", "enrollment": view})
}

func (h *EnrollmentController) UpdateProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, err := h.enrollments.UpdateProgress(c.Request.Context(), userID, c.Param("slug"), *req.CompletionPercentage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
