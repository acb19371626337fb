package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/comercialav/services/deliveries/internal/search"
)

// HistoryHandler serves free-text search over the archived partition
type HistoryHandler struct {
	elastic *search.ElasticClient
}

// NewHistoryHandler creates a new history handler. A nil client disables the
// endpoint.
func NewHistoryHandler(elastic *search.ElasticClient) *HistoryHandler {
	return &HistoryHandler{elastic: elastic}
}

// HandleSearchHistory searches the history index
func (h *HistoryHandler) HandleSearchHistory(c *gin.Context) {
	if h.elastic == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history search is disabled"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	docs, err := h.elastic.SearchHistory(c.Request.Context(), query, size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": docs})
}
