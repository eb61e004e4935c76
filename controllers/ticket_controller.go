package controllers

import (
	"net/http"

	"prago-api/models"
	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type TicketController struct {
	support *services.SupportService
}

func NewTicketController(support *services.SupportService) *TicketController {
	return &TicketController{support: support}
}

type replyRequest struct {
	Message string `json:"message" binding:"required"`
}

type ticketStatusRequest struct {
	Status models.TicketStatus `json:"status" binding:"required"`
}

func (h *TicketController) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tickets, err := h.support.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *TicketController) Open(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.NewTicket
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ticket, err := h.support.Open(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketController) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ticket, err := h.support.Get(c.Request.Context(), userID, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketController) Reply(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ticket, err := h.support.Reply(c.Request.Context(), userID, c.Param("number"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketController) SetStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ticketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ticket, err := h.support.SetStatus(c.Request.Context(), userID, c.Param("number"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketController) ActiveCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.support.ActiveCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_tickets_count": n})
}
