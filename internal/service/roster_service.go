package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type rosterRepository interface {
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	BatchRoster(ctx context.Context, batchID string) ([]models.StudentDetail, error)
	FindStudent(ctx context.Context, userID string) (*models.StudentDetail, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error)
	FindTeacher(ctx context.Context, userID string) (*models.TeacherDetail, error)
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	AssignSubject(ctx context.Context, assignment *models.TeacherSubject) error
	UnassignSubject(ctx context.Context, id string) error
	ListAssignments(ctx context.Context, teacherID string) ([]models.TeacherSubjectDetail, error)
}

type rosterUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

type rosterCatalog interface {
	FindBatch(ctx context.Context, id string) (*models.Batch, error)
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
}

// EnrollStudentRequest creates a student account and places it in a batch.
type EnrollStudentRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FullName   string `json:"full_name" validate:"required"`
	RollNumber string `json:"roll_number" validate:"required"`
	BatchID    string `json:"batch_id" validate:"required"`
	Semester   int    `json:"semester" validate:"required,gte=1"`
}

// HireTeacherRequest creates a teacher account.
type HireTeacherRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	FullName     string `json:"full_name" validate:"required"`
	EmployeeCode string `json:"employee_code" validate:"required"`
}

// AssignSubjectRequest authorizes a teacher for a subject, optionally scoped
// to one batch.
type AssignSubjectRequest struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	SubjectID string  `json:"subject_id" validate:"required"`
	BatchID   *string `json:"batch_id"`
}

// RosterService onboards students and teachers and manages who may teach
// what. Accounts and profiles live in separate tables sharing the user id.
type RosterService struct {
	roster    rosterRepository
	users     rosterUserRepository
	catalog   rosterCatalog
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService instantiates RosterService.
func NewRosterService(roster rosterRepository, users rosterUserRepository, catalog rosterCatalog, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{roster: roster, users: users, catalog: catalog, validator: validate, logger: logger}
}

// ListStudents returns students matching the filter with a total count.
func (s *RosterService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.roster.ListStudents(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// GetStudent returns one student profile.
func (s *RosterService) GetStudent(ctx context.Context, userID string) (*models.StudentDetail, error) {
	student, err := s.roster.FindStudent(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// EnrollStudent creates the account and the student profile.
func (s *RosterService) EnrollStudent(ctx context.Context, req EnrollStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	batch, err := s.catalog.FindBatch(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.FullName, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	student := &models.Student{
		UserID:       user.ID,
		RollNumber:   req.RollNumber,
		DepartmentID: batch.DepartmentID,
		BatchID:      batch.ID,
		Semester:     req.Semester,
	}
	if err := s.roster.CreateStudent(ctx, student); err != nil {
		if deactivateErr := s.users.Deactivate(ctx, user.ID); deactivateErr != nil {
			s.logger.Error("failed to deactivate orphaned account", zap.String("user", user.ID), zap.Error(deactivateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student enrolled", zap.String("user", user.ID), zap.String("batch", batch.ID))
	return &models.StudentDetail{Student: *student, FullName: user.FullName, Email: user.Email}, nil
}

// ListTeachers returns teachers matching the filter with a total count.
func (s *RosterService) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	teachers, total, err := s.roster.ListTeachers(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, total, nil
}

// GetTeacher returns one teacher profile.
func (s *RosterService) GetTeacher(ctx context.Context, userID string) (*models.TeacherDetail, error) {
	teacher, err := s.roster.FindTeacher(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// HireTeacher creates the account and the teaching profile.
func (s *RosterService) HireTeacher(ctx context.Context, req HireTeacherRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	user, err := s.createUser(ctx, req.Email, req.Password, req.FullName, models.RoleTeacher)
	if err != nil {
		return nil, err
	}
	teacher := &models.Teacher{UserID: user.ID, EmployeeCode: req.EmployeeCode}
	if err := s.roster.CreateTeacher(ctx, teacher); err != nil {
		if deactivateErr := s.users.Deactivate(ctx, user.ID); deactivateErr != nil {
			s.logger.Error("failed to deactivate orphaned account", zap.String("user", user.ID), zap.Error(deactivateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.logger.Info("teacher hired", zap.String("user", user.ID), zap.String("employee_code", req.EmployeeCode))
	return &models.TeacherDetail{Teacher: *teacher, FullName: user.FullName, Email: user.Email}, nil
}

// AssignSubject authorizes a teacher for a subject. A nil batch authorizes
// every batch of the subject's department.
func (s *RosterService) AssignSubject(ctx context.Context, req AssignSubjectRequest) (*models.TeacherSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.GetTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindSubject(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if req.BatchID != nil {
		if _, err := s.catalog.FindBatch(ctx, *req.BatchID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
		}
	}

	assignment := &models.TeacherSubject{TeacherID: req.TeacherID, SubjectID: req.SubjectID, BatchID: req.BatchID}
	if err := s.roster.AssignSubject(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign subject")
	}
	return assignment, nil
}

// UnassignSubject removes one authorization.
func (s *RosterService) UnassignSubject(ctx context.Context, id string) error {
	if err := s.roster.UnassignSubject(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove assignment")
	}
	return nil
}

// ListAssignments returns a teacher's subject authorizations.
func (s *RosterService) ListAssignments(ctx context.Context, teacherID string) ([]models.TeacherSubjectDetail, error) {
	assignments, err := s.roster.ListAssignments(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

func (s *RosterService) createUser(ctx context.Context, email, password, fullName string, role models.UserRole) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an account with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	return user, nil
}
