package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/response"
)

// TimetableHandler manages timetable endpoints.
type TimetableHandler struct {
	service *service.TimetableService
}

// NewTimetableHandler constructs handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Get godoc
// @Summary Get a batch's timetable for one day
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param day path string true "Day of week"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/timetable/{day} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	day := models.DayOfWeek(strings.ToUpper(c.Param("day")))
	slots, err := h.service.GetTimetable(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Save godoc
// @Summary Replace a batch's timetable for one day
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param day path string true "Day of week"
// @Param payload body []service.SlotInput true "Slots"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/timetable/{day} [put]
func (h *TimetableHandler) Save(c *gin.Context) {
	var inputs []service.SlotInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	day := models.DayOfWeek(strings.ToUpper(c.Param("day")))
	slots, err := h.service.SaveTimetable(c.Request.Context(), c.Param("id"), day, inputs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Delete godoc
// @Summary Delete a batch's timetable for one day
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param day path string true "Day of week"
// @Success 204
// @Router /batches/{id}/timetable/{day} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	day := models.DayOfWeek(strings.ToUpper(c.Param("day")))
	if err := h.service.DeleteTimetable(c.Request.Context(), c.Param("id"), day); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import a full weekly timetable by batch name
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.ImportWeeklyRequest true "Weekly timetable"
// @Success 200 {object} response.Envelope
// @Router /timetable/import [post]
func (h *TimetableHandler) Import(c *gin.Context) {
	var req service.ImportWeeklyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.ImportWeekly(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// EditSlot godoc
// @Summary Edit one slot addressed by its time range
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param day path string true "Day of week"
// @Param start query string true "Slot start HH:MM"
// @Param end query string true "Slot end HH:MM"
// @Param payload body service.EditSlotRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/timetable/{day}/slot [patch]
func (h *TimetableHandler) EditSlot(c *gin.Context) {
	var req service.EditSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	day := models.DayOfWeek(strings.ToUpper(c.Param("day")))
	slots, err := h.service.EditSlot(c.Request.Context(), c.Param("id"), day, c.Query("start"), c.Query("end"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// TeacherSchedule godoc
// @Summary A teacher's merged schedule for one date
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher ID"
// @Param date query string true "Date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [get]
func (h *TimetableHandler) TeacherSchedule(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	entries, err := h.service.GetTeacherDailySchedule(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
