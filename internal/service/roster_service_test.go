package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockRosterRepo struct {
	students        map[string]*models.StudentDetail
	teachers        map[string]*models.TeacherDetail
	studentFailure  error
	createdStudent  *models.Student
	createdTeacher  *models.Teacher
	assignments     []models.TeacherSubject
	unassignedIDs   []string
}

func (m *mockRosterRepo) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, student := range m.students {
		out = append(out, *student)
	}
	return out, len(out), nil
}

func (m *mockRosterRepo) BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error) {
	var out []models.StudentDetail
	for _, student := range m.students {
		if student.BatchID == batchID {
			out = append(out, *student)
		}
	}
	return out, nil
}

func (m *mockRosterRepo) FindStudent(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if student, ok := m.students[userID]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterRepo) CreateStudent(ctx context.Context, student *models.Student) error {
	if m.studentFailure != nil {
		return m.studentFailure
	}
	m.createdStudent = student
	return nil
}

func (m *mockRosterRepo) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	var out []models.TeacherDetail
	for _, teacher := range m.teachers {
		out = append(out, *teacher)
	}
	return out, len(out), nil
}

func (m *mockRosterRepo) FindTeacher(ctx context.Context, userID string) (*models.TeacherDetail, error) {
	if teacher, ok := m.teachers[userID]; ok {
		return teacher, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterRepo) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	m.createdTeacher = teacher
	return nil
}

func (m *mockRosterRepo) AssignSubject(ctx context.Context, assignment *models.TeacherSubject) error {
	assignment.ID = fmt.Sprintf("assign%d", len(m.assignments)+1)
	m.assignments = append(m.assignments, *assignment)
	return nil
}

func (m *mockRosterRepo) UnassignSubject(ctx context.Context, id string) error {
	m.unassignedIDs = append(m.unassignedIDs, id)
	return nil
}

func (m *mockRosterRepo) ListAssignments(ctx context.Context, teacherID string) ([]models.TeacherSubjectDetail, error) {
	return nil, nil
}

type mockRosterUsers struct {
	byEmail     map[string]*models.User
	created     *models.User
	deactivated []string
}

func (m *mockRosterUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterUsers) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = user
	return nil
}

func (m *mockRosterUsers) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func newRosterFixture() (*RosterService, *mockRosterRepo, *mockRosterUsers) {
	repo := &mockRosterRepo{
		students: map[string]*models.StudentDetail{},
		teachers: map[string]*models.TeacherDetail{
			"t1": {Teacher: models.Teacher{UserID: "t1", EmployeeCode: "EMP01"}, FullName: "A Teacher"},
		},
	}
	users := &mockRosterUsers{byEmail: map[string]*models.User{}}
	catalog := &mockCatalog{
		batches:  map[string]*models.Batch{"b1": {ID: "b1", Name: "CS-3A", DepartmentID: "d1", Active: true}},
		subjects: map[string]*models.Subject{"s1": {ID: "s1", Name: "Mathematics", DepartmentID: "d1"}},
	}
	return NewRosterService(repo, users, catalog, nil, nil), repo, users
}

func TestEnrollStudent(t *testing.T) {
	svc, repo, users := newRosterFixture()

	student, err := svc.EnrollStudent(context.Background(), EnrollStudentRequest{
		Email:      "Student@School.Test ",
		Password:   "longenough",
		FullName:   "New Student",
		RollNumber: "17",
		BatchID:    "b1",
		Semester:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-user", student.UserID)
	assert.Equal(t, "d1", student.DepartmentID)
	require.NotNil(t, users.created)
	assert.Equal(t, "student@school.test", users.created.Email)
	assert.Equal(t, models.RoleStudent, users.created.Role)
	assert.True(t, users.created.Active)
	assert.NotEqual(t, "longenough", users.created.PasswordHash)
	require.NotNil(t, repo.createdStudent)
	assert.Equal(t, "17", repo.createdStudent.RollNumber)
}

func TestEnrollStudentDuplicateEmail(t *testing.T) {
	svc, _, users := newRosterFixture()
	users.byEmail["taken@school.test"] = &models.User{ID: "u9", Email: "taken@school.test"}

	_, err := svc.EnrollStudent(context.Background(), EnrollStudentRequest{
		Email:      "taken@school.test",
		Password:   "longenough",
		FullName:   "New Student",
		RollNumber: "17",
		BatchID:    "b1",
		Semester:   3,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestEnrollStudentUnknownBatch(t *testing.T) {
	svc, _, users := newRosterFixture()

	_, err := svc.EnrollStudent(context.Background(), EnrollStudentRequest{
		Email:      "student@school.test",
		Password:   "longenough",
		FullName:   "New Student",
		RollNumber: "17",
		BatchID:    "b9",
		Semester:   3,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
	assert.Nil(t, users.created)
}

func TestEnrollStudentProfileFailureDeactivatesAccount(t *testing.T) {
	svc, repo, users := newRosterFixture()
	repo.studentFailure = sql.ErrConnDone

	_, err := svc.EnrollStudent(context.Background(), EnrollStudentRequest{
		Email:      "student@school.test",
		Password:   "longenough",
		FullName:   "New Student",
		RollNumber: "17",
		BatchID:    "b1",
		Semester:   3,
	})
	require.Error(t, err)
	assert.Contains(t, users.deactivated, "new-user")
}

func TestHireTeacher(t *testing.T) {
	svc, repo, users := newRosterFixture()

	teacher, err := svc.HireTeacher(context.Background(), HireTeacherRequest{
		Email:        "teacher@school.test",
		Password:     "longenough",
		FullName:     "New Teacher",
		EmployeeCode: "EMP42",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-user", teacher.UserID)
	assert.Equal(t, "EMP42", teacher.EmployeeCode)
	assert.Equal(t, models.RoleTeacher, users.created.Role)
	require.NotNil(t, repo.createdTeacher)
}

func TestAssignSubject(t *testing.T) {
	svc, repo, _ := newRosterFixture()

	assignment, err := svc.AssignSubject(context.Background(), AssignSubjectRequest{
		TeacherID: "t1",
		SubjectID: "s1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)
	assert.Nil(t, assignment.BatchID)
	assert.Len(t, repo.assignments, 1)
}

func TestAssignSubjectUnknownTeacher(t *testing.T) {
	svc, _, _ := newRosterFixture()

	_, err := svc.AssignSubject(context.Background(), AssignSubjectRequest{
		TeacherID: "t9",
		SubjectID: "s1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestAssignSubjectUnknownBatchScope(t *testing.T) {
	svc, _, _ := newRosterFixture()

	_, err := svc.AssignSubject(context.Background(), AssignSubjectRequest{
		TeacherID: "t1",
		SubjectID: "s1",
		BatchID:   strptr("b9"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
