package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/response"
)

// SubstitutionHandler manages substitution endpoints.
type SubstitutionHandler struct {
	service *service.SubstitutionService
}

// NewSubstitutionHandler constructs handler.
func NewSubstitutionHandler(svc *service.SubstitutionService) *SubstitutionHandler {
	return &SubstitutionHandler{service: svc}
}

// List godoc
// @Summary List substitutions
// @Tags Substitutions
// @Produce json
// @Security BearerAuth
// @Param teacherId query string false "Filter by teacher, either side"
// @Param batchId query string false "Filter by batch"
// @Param status query string false "Filter by status"
// @Param from query string false "Date from YYYY-MM-DD"
// @Param to query string false "Date to YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /substitutions [get]
func (h *SubstitutionHandler) List(c *gin.Context) {
	var filter models.SubstitutionFilter
	filter.TeacherID = c.Query("teacherId")
	filter.BatchID = c.Query("batchId")
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		status := models.SubstitutionStatus(raw)
		filter.Status = &status
	}
	filter.DateFrom = dateQuery(c, "from")
	filter.DateTo = dateQuery(c, "to")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	subs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, subs, pagination)
}

// Get godoc
// @Summary Get one substitution
// @Tags Substitutions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Substitution ID"
// @Success 200 {object} response.Envelope
// @Router /substitutions/{id} [get]
func (h *SubstitutionHandler) Get(c *gin.Context) {
	sub, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Available godoc
// @Summary Find teachers free to cover a slot
// @Tags Substitutions
// @Produce json
// @Security BearerAuth
// @Param subjectId query string true "Subject ID"
// @Param batchId query string true "Batch ID"
// @Param date query string true "Date YYYY-MM-DD"
// @Param start query string true "Start HH:MM"
// @Param end query string true "End HH:MM"
// @Success 200 {object} response.Envelope
// @Router /substitutions/available [get]
func (h *SubstitutionHandler) Available(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req := service.FindAvailableRequest{
		SubjectID: c.Query("subjectId"),
		BatchID:   c.Query("batchId"),
		Date:      c.Query("date"),
		StartTime: c.Query("start"),
		EndTime:   c.Query("end"),
	}
	exclude := claims.UserID
	if claims.Role == models.RoleAdmin {
		exclude = c.Query("excludeTeacherId")
	}
	teachers, err := h.service.FindAvailableTeachers(c.Request.Context(), req, exclude)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// Create godoc
// @Summary Request a substitution
// @Tags Substitutions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSubstitutionRequest true "Substitution payload"
// @Success 201 {object} response.Envelope
// @Router /substitutions [post]
func (h *SubstitutionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateSubstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sub, err := h.service.Create(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

type updateStatusRequest struct {
	Status models.SubstitutionStatus `json:"status" binding:"required"`
}

// UpdateStatus godoc
// @Summary Move a substitution through its lifecycle
// @Tags Substitutions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Substitution ID"
// @Param payload body updateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /substitutions/{id}/status [put]
func (h *SubstitutionHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sub, err := h.service.UpdateStatus(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), models.SubstitutionStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Mine godoc
// @Summary Substitutions involving the current teacher on a date
// @Tags Substitutions
// @Produce json
// @Security BearerAuth
// @Param date query string true "Date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /substitutions/mine [get]
func (h *SubstitutionHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	filter := models.SubstitutionFilter{TeacherID: claims.UserID, DateFrom: &date, DateTo: &date, PageSize: 100}
	subs, _, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}
