package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// modelCreatedAt is a fixed timestamp for the advertised catalog; the
// upstream does not version its models.
const modelCreatedAt = 1706745600

// ListModels serves GET /v1/models with the built-in catalog plus any
// client-facing names from the user mapping.
func (r *Relayer) ListModels(c *gin.Context) {
	ids := r.Models.AllModels()
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  modelCreatedAt,
			"owned_by": "antigravity",
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}
