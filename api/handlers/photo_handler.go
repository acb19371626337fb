package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/comercialav/services/deliveries/api/middleware"
	"example.com/comercialav/services/deliveries/internal/photos"
)

// Uploads above this size are rejected before touching storage
const maxPhotoBytes = 10 << 20

// PhotoHandler serves the attachment endpoints
type PhotoHandler struct {
	photos *photos.Service
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(svc *photos.Service) *PhotoHandler {
	return &PhotoHandler{photos: svc}
}

// HandleAttachPhoto uploads a photo and appends it to the delivery
func (h *PhotoHandler) HandleAttachPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if file.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds the size limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxPhotoBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}

	sess := middleware.SessionFrom(c)
	photo, err := h.photos.Attach(c.Request.Context(), sess, c.Param("id"), data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, photo)
}

// HandleDetachPhoto removes one photo from the delivery
func (h *PhotoHandler) HandleDetachPhoto(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if err := h.photos.Detach(c.Request.Context(), sess, c.Param("id"), c.Param("photoId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
