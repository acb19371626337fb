package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/comercialav/services/deliveries/api/middleware"
	"example.com/comercialav/services/deliveries/internal/commands"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/metrics"
	"example.com/comercialav/services/deliveries/internal/syncengine"
	"example.com/comercialav/services/deliveries/internal/tracing"
)

// DeliveryHandler serves the delivery list and mutation endpoints
type DeliveryHandler struct {
	engine   *syncengine.Engine
	commands *commands.Service
	tracer   tracing.Tracer
	metrics  *metrics.Metrics
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(engine *syncengine.Engine, cmds *commands.Service, tracer tracing.Tracer, m *metrics.Metrics) *DeliveryHandler {
	return &DeliveryHandler{
		engine:   engine,
		commands: cmds,
		tracer:   tracer,
		metrics:  m,
	}
}

type createForecastRequest struct {
	Supplier          string `json:"supplier" binding:"required"`
	ExpectedDate      string `json:"expected_date" binding:"required"`
	Island            string `json:"island" binding:"required,island"`
	Notes             string `json:"notes"`
	Tracking          string `json:"tracking"`
	TransportCompany  string `json:"transport_company"`
	EstimatedPallets  *int   `json:"estimated_pallets" binding:"omitempty,min=0"`
	EstimatedPackages *int   `json:"estimated_packages" binding:"omitempty,min=0"`
}

type editForecastRequest struct {
	Notes    *string `json:"notes"`
	Tracking *string `json:"tracking"`
}

type arrivalRequest struct {
	Arrival  *time.Time `json:"arrival"`
	Pallets  *int       `json:"pallets"`
	Packages *int       `json:"packages"`
}

type registrationRequest struct {
	Confirmed bool `json:"confirmed"`
}

type observationsRequest struct {
	Observations string `json:"observations"`
}

// HandleListActive returns the visible active partition with the combined
// readiness flag. Consumers treat syncing=true as "do not trust this list
// yet".
func (h *DeliveryHandler) HandleListActive(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	deliveries := h.engine.VisibleActive(sess.Caps)
	h.metrics.SetGauge("active_deliveries", int64(len(deliveries)))

	c.JSON(http.StatusOK, gin.H{
		"syncing":    h.engine.Syncing(),
		"deliveries": deliveries,
	})
}

// HandleListArchived returns the visible archived partition
func (h *DeliveryHandler) HandleListArchived(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	deliveries := h.engine.VisibleArchived(sess.Caps)
	h.metrics.SetGauge("archived_deliveries", int64(len(deliveries)))

	c.JSON(http.StatusOK, gin.H{
		"syncing":    h.engine.Syncing(),
		"deliveries": deliveries,
	})
}

// HandleGetDelivery returns one delivery from either partition. Records
// outside the session's visible regions are indistinguishable from missing
// ones.
func (h *DeliveryHandler) HandleGetDelivery(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	d, found := h.engine.Lookup(c.Param("id"))
	if !found || !sess.Caps.CanSee(d.Island) {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// HandleSyncStatus returns only the readiness flag
func (h *DeliveryHandler) HandleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"syncing": h.engine.Syncing()})
}

// HandleCreateForecast creates a new delivery forecast
func (h *DeliveryHandler) HandleCreateForecast(c *gin.Context) {
	txn := h.tracer.StartTransaction("create-forecast")
	defer h.tracer.EndTransaction(txn)

	var req createForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFrom(c)
	id, err := h.commands.CreateForecast(c.Request.Context(), sess, commands.CreateForecastInput{
		Supplier:          req.Supplier,
		ExpectedDate:      req.ExpectedDate,
		Notes:             req.Notes,
		Tracking:          req.Tracking,
		Island:            delivery.IslandCode(req.Island),
		EstimatedPallets:  req.EstimatedPallets,
		EstimatedPackages: req.EstimatedPackages,
		TransportCompany:  req.TransportCompany,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// HandleEditForecast updates the purchasing-editable forecast fields
func (h *DeliveryHandler) HandleEditForecast(c *gin.Context) {
	var req editForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFrom(c)
	err := h.commands.EditForecast(c.Request.Context(), sess, c.Param("id"), commands.ForecastEdit{
		Notes:    req.Notes,
		Tracking: req.Tracking,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// HandleRecordArrival records the physical arrival at the warehouse
func (h *DeliveryHandler) HandleRecordArrival(c *gin.Context) {
	txn := h.tracer.StartTransaction("record-arrival")
	defer h.tracer.EndTransaction(txn)

	var req arrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFrom(c)
	err := h.commands.RecordArrival(c.Request.Context(), sess, c.Param("id"), commands.ArrivalInput{
		Arrival:  req.Arrival,
		Pallets:  req.Pallets,
		Packages: req.Packages,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// HandleConfirmRegistration finalizes a warehoused delivery
func (h *DeliveryHandler) HandleConfirmRegistration(c *gin.Context) {
	txn := h.tracer.StartTransaction("confirm-registration")
	defer h.tracer.EndTransaction(txn)

	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFrom(c)
	if err := h.commands.ConfirmRegistration(c.Request.Context(), sess, c.Param("id"), req.Confirmed); err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// HandleEditObservations updates the warehouse free-text field
func (h *DeliveryHandler) HandleEditObservations(c *gin.Context) {
	var req observationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFrom(c)
	if err := h.commands.EditObservations(c.Request.Context(), sess, c.Param("id"), req.Observations); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// HandleDeleteForecast removes an active delivery
func (h *DeliveryHandler) HandleDeleteForecast(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if err := h.commands.DeleteForecast(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleArchiveRegistered triggers the archival sweep manually
func (h *DeliveryHandler) HandleArchiveRegistered(c *gin.Context) {
	txn := h.tracer.StartTransaction("archive-registered")
	defer h.tracer.EndTransaction(txn)

	sess := middleware.SessionFrom(c)
	count, err := h.commands.ArchiveRegistered(c.Request.Context(), sess)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": count})
}
