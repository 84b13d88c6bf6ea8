package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marlow/finreporter/internal/api/middleware"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/service"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// ReportHandler handles report upload, lifecycle, and analysis endpoints.
type ReportHandler struct {
	uploads  *service.UploadService
	tracker  *service.StatusTracker
	pipeline *service.Pipeline
	store    store.Store
	objects  storage.ObjectStorage
}

// NewReportHandler creates a new report handler.
func NewReportHandler(
	uploads *service.UploadService,
	tracker *service.StatusTracker,
	pipeline *service.Pipeline,
	s store.Store,
	objects storage.ObjectStorage,
) *ReportHandler {
	return &ReportHandler{
		uploads:  uploads,
		tracker:  tracker,
		pipeline: pipeline,
		store:    s,
		objects:  objects,
	}
}

// Upload handles POST /api/v1/reports/upload. The response acknowledges the
// stored upload; extraction continues in the background and its outcome is
// observed by polling the report.
func (h *ReportHandler) Upload(c *gin.Context) {
	log := middleware.GetLogger(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", "missing file field")
		return
	}
	userID := c.PostForm("user_id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "Invalid request", "missing user_id field")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondInternal(c, err)
		return
	}
	defer f.Close()

	report, err := h.uploads.Receive(c.Request.Context(), fileHeader.Filename, userID, f)
	switch {
	case errors.Is(err, service.ErrNotPDF):
		respondError(c, http.StatusBadRequest, "Invalid file type", "Only PDF files are allowed")
		return
	case errors.Is(err, service.ErrPayloadTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "File too large", err.Error())
		return
	case err != nil:
		respondInternal(c, err)
		return
	}

	if err := h.pipeline.EnqueueExtract(report.ID); err != nil {
		// No stage will ever run for this report, so mark it failed now
		// rather than leaving it stuck in uploaded.
		log.WithError(err).Error("Failed to schedule text extraction")
		if terr := h.tracker.Set(c.Request.Context(), report.ID, domain.StatusFailed,
			"text extraction could not be scheduled"); terr != nil {
			log.WithError(terr).Error("Failed to record scheduling failure")
		}
		c.JSON(http.StatusCreated, gin.H{
			"id":     report.ID,
			"status": domain.StatusFailed,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     report.ID,
		"status": domain.StatusUploaded,
	})
}

// List handles GET /api/v1/reports, optionally filtered by status.
func (h *ReportHandler) List(c *gin.Context) {
	filter := store.Filter{
		Status: domain.Status(c.Query("status")),
		UserID: c.Query("user_id"),
	}
	reports, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

// Get handles GET /api/v1/reports/:id.
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Not found", "Report not found")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
	Error  string `json:"error"`
}

// UpdateStatus handles PUT /api/v1/reports/:id/status. An operational
// endpoint: the value is validated but the write goes straight to the
// store, bypassing the transition rules the pipeline itself obeys.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	next := domain.Status(req.Status)
	if !next.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid status",
			fmt.Sprintf("Status must be one of: %s", domain.StatusValues()))
		return
	}

	fields := map[string]interface{}{"status": next}
	if req.Error != "" {
		fields["error"] = req.Error
	}
	if err := h.store.Update(c.Request.Context(), c.Param("id"), fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Not found", "Report not found")
			return
		}
		respondInternal(c, err)
		return
	}

	report, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type reportUpdateRequest struct {
	Status   string           `json:"status" binding:"required"`
	Analysis *domain.Analysis `json:"analysis"`
	Error    string           `json:"error"`
}

// Update handles PUT /api/v1/reports/:id, merging status and optionally
// analysis and error into the record.
func (h *ReportHandler) Update(c *gin.Context) {
	var req reportUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	next := domain.Status(req.Status)
	if !next.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid status",
			fmt.Sprintf("Status must be one of: %s", domain.StatusValues()))
		return
	}

	fields := map[string]interface{}{"status": next}
	if req.Analysis != nil {
		fields["analysis"] = req.Analysis
	}
	if req.Error != "" {
		fields["error"] = req.Error
	}
	if err := h.store.Update(c.Request.Context(), c.Param("id"), fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Not found", "Report not found")
			return
		}
		respondInternal(c, err)
		return
	}

	report, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Delete handles DELETE /api/v1/reports/:id, removing the record together
// with the stored binary and extracted text blob.
func (h *ReportHandler) Delete(c *gin.Context) {
	log := middleware.GetLogger(c)
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Not found", "Report not found")
			return
		}
		respondInternal(c, err)
		return
	}

	for _, key := range []string{storage.BinaryKey(id), storage.TextKey(id)} {
		if err := h.objects.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Error("Failed to delete stored object")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Report deleted successfully"})
}

// Analyze handles POST /api/v1/reports/:id/analyze. Valid only while the
// report is uploaded or extracted; the analysis itself runs in the
// background and the client polls the report for the outcome.
func (h *ReportHandler) Analyze(c *gin.Context) {
	log := middleware.GetLogger(c)
	id := c.Param("id")
	ctx := c.Request.Context()

	report, err := h.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Not found", "Report not found")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}

	if !report.Status.Analyzable() {
		respondError(c, http.StatusBadRequest, "Invalid state",
			fmt.Sprintf("Report cannot be analyzed in its current state: %s", report.Status))
		return
	}

	if err := h.tracker.Set(ctx, id, domain.StatusAnalyzing, ""); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			respondError(c, http.StatusBadRequest, "Invalid state", err.Error())
			return
		}
		respondInternal(c, err)
		return
	}
	if err := h.pipeline.EnqueueAnalyze(id); err != nil {
		log.WithError(err).Error("Failed to schedule analysis")
		respondInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": domain.StatusAnalyzing,
	})
}
