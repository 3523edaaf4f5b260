package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/academia/backend/internal/middleware"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/internal/services"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	store  *stubStore
	mailer *stubMailer
}

var testSetupOnce sync.Once

// stubStore stands in for the object store; uploads return a fixed URL.
type stubStore struct {
	failUploads bool
	uploads     int
}

func (s *stubStore) UploadImage(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error) {
	if s.failUploads {
		return "", errors.New("store unavailable")
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	s.uploads++
	return "http://store.test/images/stub.png", nil
}

type stubCards struct {
	fail bool
}

func (s *stubCards) RenderStudentCard(ctx context.Context, student *models.Student) ([]byte, error) {
	if s.fail {
		return nil, errors.New("renderer unavailable")
	}
	return []byte("%PDF-1.4 stub"), nil
}

type stubMailer struct {
	mu   sync.Mutex
	fail bool
	sent []services.Message
}

func (m *stubMailer) Send(ctx context.Context, msg services.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mail gateway unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		if err := utils.ConfigureJWT("test-secret", 24); err != nil {
			panic(err)
		}
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Student{},
		&models.Course{},
		&models.Enrollment{},
		&models.AttendanceRecord{},
		&models.TwoFactorConfig{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := &stubStore{}
	mailer := &stubMailer{}
	registrationService := services.NewRegistrationService(db, store, &stubCards{}, mailer)

	authHandler := NewAuthHandler(db)
	mfaHandler := NewMFAHandler(db)
	usersHandler := NewUsersHandler(db)
	studentsHandler := NewStudentsHandler(db, registrationService, store)
	coursesHandler := NewCoursesHandler(db)
	attendanceHandler := NewAttendanceHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)
	staffOnly := middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleMaintenance, models.UserRoleTeacher)
	adminOnly := middleware.RequireRoles(models.UserRoleAdmin)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/2fa/verify", authHandler.VerifyTwoFactor)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/2fa", authMiddleware.RequireAuth)
	mfaRoutes.Get("/status", mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/verify-setup", mfaHandler.TOTPVerifySetup)
	mfaRoutes.Post("/totp/disable", mfaHandler.TOTPDisable)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, adminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	studentRoutes := api.Group("/students")
	studentRoutes.Post("/register", studentsHandler.Register)
	studentRoutes.Post("/login", studentsHandler.Login)
	studentRoutes.Get("/me", authMiddleware.RequireAuth, studentsHandler.Me)
	studentRoutes.Get("/", authMiddleware.RequireAuth, staffOnly, studentsHandler.List)
	studentRoutes.Get("/:id/courses", authMiddleware.RequireAuth, staffOnly, studentsHandler.ListCourses)
	studentRoutes.Get("/:id", authMiddleware.RequireAuth, staffOnly, studentsHandler.Get)
	studentRoutes.Put("/:id/status", authMiddleware.RequireAuth, adminOnly, studentsHandler.SetStatus)
	studentRoutes.Put("/:id", authMiddleware.RequireAuth, staffOnly, studentsHandler.Update)
	studentRoutes.Delete("/:id", authMiddleware.RequireAuth, adminOnly, studentsHandler.Delete)

	courseRoutes := api.Group("/courses", authMiddleware.RequireAuth)
	courseRoutes.Post("/", staffOnly, coursesHandler.Create)
	courseRoutes.Get("/", coursesHandler.List)
	courseRoutes.Get("/:id", coursesHandler.Get)
	courseRoutes.Put("/:id", staffOnly, coursesHandler.Update)
	courseRoutes.Delete("/:id", adminOnly, coursesHandler.Delete)
	courseRoutes.Post("/:id/enroll", staffOnly, coursesHandler.Enroll)
	courseRoutes.Post("/:id/drop", staffOnly, coursesHandler.Drop)
	courseRoutes.Get("/:id/students", staffOnly, coursesHandler.ListStudents)

	attendanceRoutes := api.Group("/attendance", authMiddleware.RequireAuth, staffOnly)
	attendanceRoutes.Post("/", attendanceHandler.Mark)
	attendanceRoutes.Get("/", attendanceHandler.List)
	attendanceRoutes.Get("/export", attendanceHandler.ExportCSV)

	return &testEnv{app: app, db: db, store: store, mailer: mailer}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestStudent(t *testing.T, db *gorm.DB, email, nationalID, password string, status models.StudentStatus) *models.Student {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	student := &models.Student{
		FirstName:    "Test",
		LastName:     "Student",
		Email:        email,
		NationalID:   nationalID,
		PasswordHash: hash,
		Status:       status,
	}
	if err := db.Create(student).Error; err != nil {
		t.Fatalf("failed creating test student: %v", err)
	}

	return student
}

func createTestCourse(t *testing.T, db *gorm.DB, code, title string) *models.Course {
	t.Helper()

	course := &models.Course{Code: code, Title: title, Credits: 3}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("failed creating test course: %v", err)
	}
	return course
}

func enrollTestStudent(t *testing.T, db *gorm.DB, student *models.Student, course *models.Course) *models.Enrollment {
	t.Helper()

	enrollment := &models.Enrollment{
		StudentID:  student.ID,
		CourseID:   course.ID,
		EnrolledAt: time.Now(),
		Status:     models.EnrollmentStatusActive,
	}
	if err := db.Create(enrollment).Error; err != nil {
		t.Fatalf("failed creating test enrollment: %v", err)
	}
	return enrollment
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
