package controllers

import (
	"net/http"

	"prago-api/services"
	"prago-api/store"

	"github.com/gin-gonic/gin"
)

type CatalogController struct {
	catalog *services.CatalogService
}

func NewCatalogController(catalog *services.CatalogService) *CatalogController {
	return &CatalogController{catalog: catalog}
}

func (h *CatalogController) ListCourses(c *gin.Context) {
	courses, err := h.catalog.List(c.Request.Context(), store.CourseFilter{
		CategorySlug: c.Query("category"),
		Query:        c.Query("q"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *CatalogController) GetCourse(c *gin.Context) {
	course, err := h.catalog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *CatalogController) Categories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CatalogController) CreateCategory(c *gin.Context) {
	var req services.NewCategory
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CatalogController) CreateCourse(c *gin.Context) {
	var req services.NewCourse
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	course, err := h.catalog.CreateCourse(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// AddEpisode creates an episode; video durations are filled in by the worker.
func (h *CatalogController) AddEpisode(c *gin.Context) {
	courseID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req services.NewEpisode
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	episode, err := h.catalog.AddEpisode(c.Request.Context(), courseID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, episode)
}
