package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
	"github.com/classtrack/classtrack-api/pkg/response"
)

// ReportHandler serves computed attendance summaries.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// SubjectSummaries godoc
// @Summary A student's per-subject attendance standing
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reports/subjects [get]
func (h *ReportHandler) SubjectSummaries(c *gin.Context) {
	summaries, err := h.service.SubjectSummaries(c.Request.Context(), c.Param("id"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// Overall godoc
// @Summary A student's combined attendance percentage
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reports/overall [get]
func (h *ReportHandler) Overall(c *gin.Context) {
	overall, err := h.service.OverallSummary(c.Request.Context(), c.Param("id"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overall, nil)
}

// Streaks godoc
// @Summary A student's current and longest daily streaks
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reports/streaks [get]
func (h *ReportHandler) Streaks(c *gin.Context) {
	streaks, err := h.service.Streaks(c.Request.Context(), c.Param("id"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, streaks, nil)
}

// Matrix godoc
// @Summary The batch-wide student-by-subject attendance matrix
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/reports/matrix [get]
func (h *ReportHandler) Matrix(c *gin.Context) {
	matrix, err := h.service.Matrix(c.Request.Context(), c.Param("id"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil)
}

// ClassHistory godoc
// @Summary Classes a teacher has held, with head counts
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher ID"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/reports/classes [get]
func (h *ReportHandler) ClassHistory(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.DateFrom = dateQuery(c, "from")
	filter.DateTo = dateQuery(c, "to")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	entries, total, err := h.service.ClassHistory(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, entries, pagination)
}
