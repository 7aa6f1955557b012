package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/classtrack/classtrack-api/internal/handler"
	"github.com/classtrack/classtrack-api/internal/middleware"
	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
	"github.com/classtrack/classtrack-api/pkg/config"
	"github.com/classtrack/classtrack-api/pkg/logger"
	corsmiddleware "github.com/classtrack/classtrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classtrack/classtrack-api/pkg/middleware/requestid"

	"go.uber.org/zap"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Catalog      *handler.CatalogHandler
	Roster       *handler.RosterHandler
	Timetable    *handler.TimetableHandler
	Substitution *handler.SubstitutionHandler
	Attendance   *handler.AttendanceHandler
	Report       *handler.ReportHandler
	Export       *handler.ExportHandler
	Metrics      *handler.MetricsHandler
}

// New assembles the gin engine with all routes mounted under the configured
// API prefix.
func New(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.PUT("/auth/password", h.Auth.ChangePassword)
		protected.GET("/auth/me", h.Auth.Me)

		admin := middleware.RequireRoles(models.RoleAdmin)
		staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
		anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
		selfOrStaff := middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF")

		protected.GET("/departments", anyone, h.Catalog.ListDepartments)
		protected.POST("/departments", admin, h.Catalog.CreateDepartment)
		protected.GET("/batches", anyone, h.Catalog.ListBatches)
		protected.POST("/batches", admin, h.Catalog.CreateBatch)
		protected.GET("/batches/:id", anyone, h.Catalog.GetBatch)
		protected.PUT("/batches/:id/active", admin, h.Catalog.SetBatchActive)
		protected.GET("/subjects", anyone, h.Catalog.ListSubjects)
		protected.POST("/subjects", admin, h.Catalog.CreateSubject)

		protected.GET("/students", staff, h.Roster.ListStudents)
		protected.POST("/students", admin, h.Roster.EnrollStudent)
		protected.GET("/students/:id", selfOrStaff, h.Roster.GetStudent)
		protected.GET("/teachers", staff, h.Roster.ListTeachers)
		protected.POST("/teachers", admin, h.Roster.HireTeacher)
		protected.GET("/teachers/:id", staff, h.Roster.GetTeacher)
		protected.GET("/teachers/:id/subjects", staff, h.Roster.ListAssignments)
		protected.POST("/teachers/subjects", admin, h.Roster.AssignSubject)
		protected.DELETE("/teachers/subjects/:id", admin, h.Roster.UnassignSubject)

		protected.GET("/batches/:id/timetable/:day", anyone, h.Timetable.Get)
		protected.PUT("/batches/:id/timetable/:day", admin, h.Timetable.Save)
		protected.DELETE("/batches/:id/timetable/:day", admin, h.Timetable.Delete)
		protected.PATCH("/batches/:id/timetable/:day/slot", admin, h.Timetable.EditSlot)
		protected.POST("/timetable/import", admin, h.Timetable.Import)
		protected.GET("/teachers/:id/schedule", selfOrStaff, h.Timetable.TeacherSchedule)

		protected.GET("/substitutions", staff, h.Substitution.List)
		protected.GET("/substitutions/available", staff, h.Substitution.Available)
		protected.GET("/substitutions/mine", staff, h.Substitution.Mine)
		protected.GET("/substitutions/:id", staff, h.Substitution.Get)
		protected.POST("/substitutions", staff, h.Substitution.Create)
		protected.PUT("/substitutions/:id/status", staff, h.Substitution.UpdateStatus)

		protected.POST("/attendance", staff, h.Attendance.Mark)
		protected.GET("/attendance", staff, h.Attendance.List)
		protected.GET("/attendance/:id", staff, h.Attendance.Get)
		protected.GET("/students/:id/attendance", selfOrStaff, h.Attendance.StudentHistory)

		protected.GET("/students/:id/reports/subjects", selfOrStaff, h.Report.SubjectSummaries)
		protected.GET("/students/:id/reports/overall", selfOrStaff, h.Report.Overall)
		protected.GET("/students/:id/reports/streaks", selfOrStaff, h.Report.Streaks)
		protected.GET("/batches/:id/reports/matrix", staff, h.Report.Matrix)
		protected.GET("/teachers/:id/reports/classes", selfOrStaff, h.Report.ClassHistory)

		protected.POST("/exports", staff, h.Export.Create)
		protected.GET("/exports/:id", staff, h.Export.Status)
	}

	// Download auth rides in the signed token itself.
	api.GET("/exports/download", h.Export.Download)

	return r
}
