package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/commands"
	"example.com/comercialav/services/deliveries/internal/photos"
	"example.com/comercialav/services/deliveries/internal/store"
)

// respondError maps command and store errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	var validation *commands.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "validation failed",
			"missing_fields": validation.Missing,
		})
		return
	}

	switch {
	case errors.Is(err, commands.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrConfirmationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrArchived):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
	case errors.Is(err, photos.ErrPhotoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
