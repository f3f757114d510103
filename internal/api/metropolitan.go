package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"listingsearch/server/config"
)

type MetropolitanHandler struct {
	metros *config.MetroAreas
}

func NewMetropolitanHandler(metros *config.MetroAreas) *MetropolitanHandler {
	return &MetropolitanHandler{metros: metros}
}

// ListMetropolitanAreas returns all metro areas
func (h *MetropolitanHandler) ListMetropolitanAreas(c *gin.Context) {
	areas := h.metros.All()
	if areas == nil {
		areas = []config.MetroArea{}
	}
	c.JSON(http.StatusOK, areas)
}

// GetMetropolitanArea returns one metro area with its deduplicated cities
func (h *MetropolitanHandler) GetMetropolitanArea(c *gin.Context) {
	name := c.Param("name")
	cities := h.metros.Cities(name)
	if cities == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Metropolitan area not found"})
		return
	}
	c.JSON(http.StatusOK, config.MetroArea{Name: name, Cities: cities})
}
