package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/middleware"
	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
)

type attendanceRepoStub struct {
	record  *models.AttendanceRecord
	entries []models.AttendanceEntry
}

func (s *attendanceRepoStub) CreateWithEntries(_ context.Context, record *models.AttendanceRecord, entries []models.AttendanceEntry) error {
	record.ID = "rec1"
	s.record = record
	s.entries = entries
	return nil
}

func (s *attendanceRepoStub) FindByID(_ context.Context, id string) (*models.AttendanceRecordDetail, error) {
	if s.record == nil || s.record.ID != id {
		return nil, sql.ErrNoRows
	}
	return &models.AttendanceRecordDetail{
		AttendanceRecord: *s.record,
		SubjectName:      "Mathematics",
		BatchName:        "CS-3A",
		Entries:          s.entries,
	}, nil
}

func (s *attendanceRepoStub) List(context.Context, models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return nil, 0, nil
}

func (s *attendanceRepoStub) StudentRows(context.Context, string, *time.Time, *time.Time) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

type noCover struct{}

func (noCover) FindCoveringForSlot(context.Context, time.Time, string, string, string, string) (*models.Substitution, error) {
	return nil, sql.ErrNoRows
}

type rosterStub struct {
	students []models.StudentDetail
}

func (s *rosterStub) BatchRoster(context.Context, string) ([]models.StudentDetail, error) {
	return s.students, nil
}

// nextClassDate picks the nearest future date a class can be marked on.
func nextClassDate() (string, models.DayOfWeek) {
	d := time.Now().UTC().AddDate(0, 0, 1)
	if d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	day, _ := models.DayOfDate(d)
	return d.Format("2006-01-02"), day
}

func newAttendanceHandlerFixture() (*AttendanceHandler, *attendanceRepoStub) {
	_, day := nextClassDate()
	timetable := &timetableRepoStub{days: map[string][]models.TimeSlot{
		"b1|" + string(day): {
			{ID: "ts1", BatchID: "b1", DayOfWeek: day, StartTime: "09:00", EndTime: "10:00", SubjectID: ptr("s1"), TeacherID: ptr("t1"), Room: "101"},
		},
	}}
	repo := &attendanceRepoStub{}
	roster := &rosterStub{students: []models.StudentDetail{
		{Student: models.Student{UserID: "stu1", RollNumber: "01", BatchID: "b1"}, FullName: "A Student"},
	}}
	svc := service.NewAttendanceService(repo, timetable, noCover{}, roster, nil, nil, nil, nil, time.UTC)
	return NewAttendanceHandler(svc), repo
}

func markPayload(t *testing.T) []byte {
	t.Helper()
	dateStr, _ := nextClassDate()
	payload, err := json.Marshal(service.MarkAttendanceRequest{
		Date:            dateStr,
		SubjectID:       "s1",
		BatchID:         "b1",
		ClassTime:       "09:00",
		DurationMinutes: 60,
		Entries: []service.MarkEntryInput{
			{StudentID: "stu1", Status: models.AttendancePresent},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestAttendanceHandlerMark(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newAttendanceHandlerFixture()

	c, w := newGinContext(http.MethodPost, "/attendance", markPayload(t))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.record)
	require.False(t, repo.record.IsSubstitution)
	require.Len(t, repo.entries, 1)
	require.Equal(t, "01", repo.entries[0].RollNumber)
}

func TestAttendanceHandlerMarkRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAttendanceHandlerFixture()

	c, w := newGinContext(http.MethodPost, "/attendance", markPayload(t))

	handler.Mark(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerMarkInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAttendanceHandlerFixture()

	c, w := newGinContext(http.MethodPost, "/attendance", []byte("{not json"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerMarkWrongTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newAttendanceHandlerFixture()

	c, w := newGinContext(http.MethodPost, "/attendance", markPayload(t))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t9", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Nil(t, repo.record)
}

func TestAttendanceHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAttendanceHandlerFixture()

	c, w := newGinContext(http.MethodGet, "/attendance/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
