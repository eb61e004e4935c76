package controllers

import (
	"net/http"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type PostController struct {
	blog *services.BlogService
}

func NewPostController(blog *services.BlogService) *PostController {
	return &PostController{blog: blog}
}

func (h *PostController) List(c *gin.Context) {
	posts, err := h.blog.List(c.Request.Context(), c.Query("ordering"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *PostController) Get(c *gin.Context) {
	post, err := h.blog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostController) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.NewPost
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	post, err := h.blog.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}
