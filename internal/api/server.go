// Package api exposes the HTTP surface: complaint intake, lookup, lifecycle
// transitions, dashboard queries, and the health endpoint.
package api

import (
	"encoding/base64"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
	"jansahayak/internal/health"
	"jansahayak/internal/orchestrator"
	"jansahayak/internal/store"
)

// Handler carries the collaborators behind the HTTP surface.
type Handler struct {
	orch    *orchestrator.Orchestrator
	store   *store.Store
	monitor *health.Monitor
}

// NewHandler creates the HTTP handler.
func NewHandler(orch *orchestrator.Orchestrator, st *store.Store, monitor *health.Monitor) *Handler {
	return &Handler{orch: orch, store: st, monitor: monitor}
}

// RegisterRoutes mounts all endpoints on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/complaints", h.submitComplaint)
		api.GET("/complaints", h.listComplaints)
		api.GET("/complaints/:id", h.getComplaint)
		api.POST("/complaints/:id/transition", h.transitionComplaint)
		api.GET("/stats", h.getStats)
	}
	r.GET("/health", h.getHealth)
}

// submitRequest is the intake payload. The photo travels base64-encoded in
// the JSON body.
type submitRequest struct {
	CitizenName  string  `json:"citizen_name" binding:"required"`
	CitizenPhone string  `json:"citizen_phone" binding:"required"`
	IssueType    string  `json:"issue_type" binding:"required"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      string  `json:"address" binding:"required"`
	PhotoBase64  string  `json:"photo_base64" binding:"required"`
	PhotoMIME    string  `json:"photo_mime"`
}

func (h *Handler) submitComplaint(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := base64.StdEncoding.DecodeString(req.PhotoBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo_base64 is not valid base64"})
		return
	}

	mime := req.PhotoMIME
	if mime == "" {
		mime = "image/jpeg"
	}

	cm, err := h.orch.ProcessIntake(c.Request.Context(), orchestrator.Submission{
		CitizenName:  req.CitizenName,
		CitizenPhone: req.CitizenPhone,
		Location: complaint.Location{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Address:   req.Address,
		},
		IssueType: req.IssueType,
		Photo:     photo,
		PhotoMIME: mime,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cm)
}

func (h *Handler) getComplaint(c *gin.Context) {
	cm, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (h *Handler) listComplaints(c *gin.Context) {
	var f store.Filter

	if raw := c.Query("status"); raw != "" {
		status, err := complaint.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Status = &status
	}
	if raw := c.Query("tier"); raw != "" {
		tier, err := complaint.ParseUrgencyTier(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Tier = &tier
	}
	if raw := c.Query("min_risk"); raw != "" {
		minRisk, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_risk must be an integer"})
			return
		}
		f.MinRisk = &minRisk
	}
	if raw := c.Query("plan_pending"); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plan_pending must be a boolean"})
			return
		}
		f.PlanPending = &pending
	}

	complaints, err := h.store.Query(c.Request.Context(), f)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"complaints": complaints,
		"count":      len(complaints),
	})
}

// transitionRequest moves a complaint through its lifecycle.
type transitionRequest struct {
	To    string `json:"to" binding:"required"`
	Actor string `json:"actor" binding:"required"`
	Note  string `json:"note"`
}

func (h *Handler) transitionComplaint(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	to, err := complaint.ParseStatus(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cm, err := h.store.Transition(c.Request.Context(), c.Param("id"), to, req.Actor, req.Note)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetStatus())
}

// renderError maps domain errors to HTTP status codes.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.IsInvalidSubmission(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.IsInvalidAssessment(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.IsVisionUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.IsInvalidTransition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("⚠️  Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
