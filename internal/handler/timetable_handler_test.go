package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
)

type timetableRepoStub struct {
	days     map[string][]models.TimeSlot
	replaced map[string][]models.TimeSlot
	deleted  []string
}

func (s *timetableRepoStub) ListDay(_ context.Context, batchID string, day models.DayOfWeek) ([]models.TimeSlot, error) {
	return s.days[batchID+"|"+string(day)], nil
}

func (s *timetableRepoStub) ReplaceDay(_ context.Context, batchID string, day models.DayOfWeek, slots []models.TimeSlot) error {
	s.replaced[batchID+"|"+string(day)] = slots
	return nil
}

func (s *timetableRepoStub) ReplaceDays(_ context.Context, batchID string, days map[models.DayOfWeek][]models.TimeSlot) error {
	for day, slots := range days {
		s.replaced[batchID+"|"+string(day)] = slots
	}
	return nil
}

func (s *timetableRepoStub) DeleteDay(_ context.Context, batchID string, day models.DayOfWeek) error {
	s.deleted = append(s.deleted, batchID+"|"+string(day))
	return nil
}

func (s *timetableRepoStub) FindSlot(_ context.Context, batchID string, day models.DayOfWeek, startTime, endTime string) (*models.TimeSlot, error) {
	for _, slot := range s.days[batchID+"|"+string(day)] {
		if slot.StartTime == startTime && slot.EndTime == endTime {
			found := slot
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) ListByTeacherDay(_ context.Context, teacherID string, day models.DayOfWeek) ([]models.TimeSlot, error) {
	var out []models.TimeSlot
	for _, slots := range s.days {
		for _, slot := range slots {
			if slot.DayOfWeek == day && slot.TeacherID != nil && *slot.TeacherID == teacherID {
				out = append(out, slot)
			}
		}
	}
	return out, nil
}

type catalogStub struct {
	batches  map[string]*models.Batch
	subjects map[string]*models.Subject
}

func (s *catalogStub) FindBatch(_ context.Context, id string) (*models.Batch, error) {
	if batch, ok := s.batches[id]; ok {
		return batch, nil
	}
	return nil, sql.ErrNoRows
}

func (s *catalogStub) FindBatchByName(_ context.Context, name string) (*models.Batch, error) {
	for _, batch := range s.batches {
		if batch.Name == name {
			return batch, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *catalogStub) FindSubject(_ context.Context, id string) (*models.Subject, error) {
	if subject, ok := s.subjects[id]; ok {
		return subject, nil
	}
	return nil, sql.ErrNoRows
}

func (s *catalogStub) FindSubjectByName(_ context.Context, departmentID, name string) (*models.Subject, error) {
	for _, subject := range s.subjects {
		if subject.DepartmentID == departmentID && subject.Name == name {
			return subject, nil
		}
	}
	return nil, sql.ErrNoRows
}

type noSubstitutions struct{}

func (noSubstitutions) ListForTeacherOnDate(context.Context, string, time.Time) ([]models.Substitution, error) {
	return nil, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func ptr(s string) *string { return &s }

func newTimetableHandlerFixture() (*TimetableHandler, *timetableRepoStub) {
	repo := &timetableRepoStub{days: map[string][]models.TimeSlot{}, replaced: map[string][]models.TimeSlot{}}
	catalog := &catalogStub{
		batches: map[string]*models.Batch{
			"b1": {ID: "b1", Name: "CS-3A", DepartmentID: "d1", Active: true},
		},
		subjects: map[string]*models.Subject{
			"s1": {ID: "s1", Name: "Mathematics", Code: "MATH301", DepartmentID: "d1", Semester: 3},
		},
	}
	svc := service.NewTimetableService(repo, catalog, noSubstitutions{}, models.ImportModeAtomic, nil, nil)
	return NewTimetableHandler(svc), repo
}

func TestTimetableHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newTimetableHandlerFixture()
	repo.days["b1|MONDAY"] = []models.TimeSlot{
		{ID: "ts1", BatchID: "b1", DayOfWeek: models.Monday, StartTime: "09:00", EndTime: "10:00", SubjectID: ptr("s1"), TeacherID: ptr("t1"), Room: "101"},
	}

	c, w := newGinContext(http.MethodGet, "/batches/b1/timetable/monday", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "monday"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.TimeSlot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "09:00", envelope.Data[0].StartTime)
}

func TestTimetableHandlerGetEmptyDay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newTimetableHandlerFixture()

	c, w := newGinContext(http.MethodGet, "/batches/b1/timetable/friday", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "friday"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerSave(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newTimetableHandlerFixture()

	payload, _ := json.Marshal([]service.SlotInput{
		{StartTime: "09:00", EndTime: "10:00", SubjectID: ptr("s1"), TeacherID: ptr("t1"), Room: "101"},
		{StartTime: "10:00", EndTime: "10:15", IsBreak: true},
	})
	c, w := newGinContext(http.MethodPut, "/batches/b1/timetable/monday", payload)
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "monday"}}

	handler.Save(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, repo.replaced["b1|MONDAY"], 2)
}

func TestTimetableHandlerSaveOverlap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newTimetableHandlerFixture()

	payload, _ := json.Marshal([]service.SlotInput{
		{StartTime: "09:00", EndTime: "10:00", SubjectID: ptr("s1"), TeacherID: ptr("t1"), Room: "101"},
		{StartTime: "09:30", EndTime: "10:30", SubjectID: ptr("s1"), TeacherID: ptr("t1"), Room: "102"},
	})
	c, w := newGinContext(http.MethodPut, "/batches/b1/timetable/monday", payload)
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "monday"}}

	handler.Save(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, repo.replaced)
}

func TestTimetableHandlerSaveInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newTimetableHandlerFixture()

	c, w := newGinContext(http.MethodPut, "/batches/b1/timetable/monday", []byte("{not json"))
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "monday"}}

	handler.Save(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newTimetableHandlerFixture()

	c, w := newGinContext(http.MethodDelete, "/batches/b1/timetable/monday", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}, {Key: "day", Value: "monday"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, []string{"b1|MONDAY"}, repo.deleted)
}

func TestTimetableHandlerTeacherScheduleBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newTimetableHandlerFixture()

	c, w := newGinContext(http.MethodGet, "/teachers/t1/schedule?date=07-09-2026", nil)
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.TeacherSchedule(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
