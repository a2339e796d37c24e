package routes

import (
	"schoolcore/controllers"
	"schoolcore/middleware"
	"schoolcore/services"
	"schoolcore/storage"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Dependencies carries everything the handlers need. Storage may be nil.
type Dependencies struct {
	DB          *gorm.DB
	Auth        *middleware.Authenticator
	Activity    *services.ActivityLogService
	Archive     *services.LogArchiveService
	Health      *services.HealthService
	Grades      *services.GradeService
	Rankings    *services.RankingService
	Students    *services.StudentService
	Enrollment  *services.EnrollmentService
	Academic    *services.AcademicService
	Ledger      *services.LedgerService
	Payroll     *services.PayrollService
	Timetable   *services.TimetableService
	Storage     *storage.StorageService
	MaxFileSize int64
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	// Initialize controllers
	authController := controllers.NewAuthController(deps.DB, deps.Auth, deps.Activity)
	gradeController := controllers.NewGradeController(deps.Grades, deps.MaxFileSize)
	reportController := controllers.NewReportController(deps.DB, deps.Rankings)
	studentController := controllers.NewStudentController(deps.Students, deps.Enrollment)
	academicController := controllers.NewAcademicController(deps.Academic, deps.Enrollment)
	financeController := controllers.NewFinanceController(deps.Ledger, deps.Storage)
	timetableController := controllers.NewTimetableController(deps.Timetable)
	staffController := controllers.NewStaffController(deps.Payroll)
	logController := controllers.NewLogController(deps.Activity, deps.Archive)
	healthController := controllers.NewHealthController(deps.Health)

	finance := middleware.RequireRole(middleware.FinanceRoles...)
	academic := middleware.RequireRole(middleware.AcademicRoles...)
	management := middleware.RequireRole(middleware.ManagementRoles...)
	admin := middleware.RequireRole(middleware.AdminRoles...)

	app.Get("/health", healthController.GetHealthStatus)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", deps.Auth.Middleware(), authController.GetProfile)
	auth.Put("/password", deps.Auth.Middleware(), authController.ChangePassword)
	auth.Post("/logout", deps.Auth.Middleware(), authController.Logout)

	// Protected routes (require authentication)
	protected := api.Group("/", deps.Auth.Middleware())

	users := protected.Group("/users")
	users.Post("/", admin, authController.CreateUser)

	// Grades
	grades := protected.Group("/grades")
	grades.Post("/", academic, gradeController.CreateGrade)
	grades.Post("/import", academic, gradeController.ImportGrades)
	grades.Get("/", academic, gradeController.GetGrades)
	grades.Get("/by-params", academic, gradeController.GetByParams)
	grades.Get("/:id", academic, gradeController.GetGrade)
	grades.Patch("/:id", academic, gradeController.UpdateGrade)
	grades.Delete("/:id", academic, gradeController.DeleteGrade)

	protected.Get("/transcripts/:student_id", academic, reportController.GetTranscript)

	// Students
	students := protected.Group("/students")
	students.Post("/", academic, studentController.CreateStudent)
	students.Get("/", academic, studentController.GetStudents)
	students.Get("/:id", academic, studentController.GetStudent)
	students.Post("/:id/transfer_class", management, studentController.TransferClass)

	// Academic structure
	years := protected.Group("/academic-years")
	years.Get("/", academicController.GetYears)
	years.Post("/", management, academicController.CreateYear)
	years.Post("/:id/set_current", management, academicController.SetCurrentYear)

	classes := protected.Group("/classes")
	classes.Get("/", academicController.GetClasses)
	classes.Post("/", management, academicController.CreateClass)
	classes.Get("/:id", academicController.GetClass)
	classes.Get("/:id/roster", academic, academicController.GetRoster)
	classes.Post("/:id/enroll", management, academicController.EnrollStudent)
	classes.Get("/:id/rankings", academic, reportController.GetClassRankings)
	classes.Get("/:id/performance", academic, reportController.GetClassPerformance)
	classes.Get("/:id/transcripts", academic, reportController.GetClassTranscripts)

	subjects := protected.Group("/subjects")
	subjects.Get("/", academicController.GetSubjects)
	subjects.Post("/", management, academicController.CreateSubject)

	teachers := protected.Group("/teachers")
	teachers.Get("/", academicController.GetTeachers)
	teachers.Post("/", management, academicController.CreateTeacher)
	teachers.Get("/:id/salary_history", management, staffController.GetSalaryHistory)

	// Timetable
	timetable := protected.Group("/timetable")
	timetable.Get("/", timetableController.GetSlots)
	timetable.Get("/class_schedule", timetableController.ClassSchedule)
	timetable.Get("/teacher_schedule", timetableController.TeacherSchedule)
	timetable.Post("/check_conflicts", timetableController.CheckConflicts)
	timetable.Post("/", management, timetableController.CreateSlot)
	timetable.Put("/:id", management, timetableController.UpdateSlot)
	timetable.Delete("/:id", management, timetableController.DeleteSlot)

	// Finance
	invoices := protected.Group("/invoices", finance)
	invoices.Post("/generate", financeController.GenerateInvoice)
	invoices.Post("/bulk_generate", financeController.BulkGenerate)
	invoices.Get("/", financeController.GetInvoices)
	invoices.Get("/:id", financeController.GetInvoice)
	invoices.Get("/:id/payments", financeController.GetInvoicePayments)
	invoices.Post("/:id/cancel", financeController.CancelInvoice)

	payments := protected.Group("/payments", finance)
	payments.Post("/", financeController.RecordPayment)
	payments.Get("/", financeController.GetPayments)
	payments.Get("/daily_collection", financeController.DailyCollection)

	expenditures := protected.Group("/expenditures", finance)
	expenditures.Post("/", financeController.CreateExpenditure)
	expenditures.Get("/", financeController.GetExpenditures)
	expenditures.Get("/category_summary", financeController.CategorySummary)
	expenditures.Post("/:id/receipt", financeController.UploadReceipt)

	fees := protected.Group("/fee-structures", finance)
	fees.Post("/", financeController.CreateFeeStructure)
	fees.Get("/", financeController.GetFeeStructures)

	summary := protected.Group("/finance", finance)
	summary.Get("/summary", financeController.Summary)
	summary.Get("/monthly_trends", financeController.MonthlyTrends)

	// Staff and payroll
	structures := protected.Group("/salary-structures", management)
	structures.Post("/", staffController.SetSalaryStructure)
	structures.Get("/", staffController.GetSalaryStructures)

	salaries := protected.Group("/salary-payments", management)
	salaries.Get("/", staffController.GetSalaryPayments)
	salaries.Post("/process_salary", staffController.ProcessSalary)
	salaries.Post("/:id/mark_as_paid", staffController.MarkSalaryPaid)

	attendance := protected.Group("/staff-attendance", management)
	attendance.Post("/", staffController.RecordAttendance)
	attendance.Get("/", staffController.GetAttendance)

	leaves := protected.Group("/leave-requests")
	leaves.Post("/", staffController.RequestLeave)
	leaves.Get("/", staffController.GetLeaveRequests)
	leaves.Post("/:id/approve_reject", management, staffController.ReviewLeave)

	// Log management (admin only)
	logs := protected.Group("/logs", admin)
	logs.Get("/", logController.GetLogs)
	logs.Post("/flush-cache", logController.FlushCache)
	logs.Post("/archive", logController.ArchiveLogs)
	logs.Get("/archives", logController.GetArchives)
	logs.Get("/archives/:id/download", logController.DownloadArchive)
}
