package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/academia/backend/internal/middleware"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/internal/services"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type StudentsHandler struct {
	DB           *gorm.DB
	Registration *services.RegistrationService
	Store        services.ObjectStore
}

func NewStudentsHandler(db *gorm.DB, registration *services.RegistrationService, store services.ObjectStore) *StudentsHandler {
	return &StudentsHandler{DB: db, Registration: registration, Store: store}
}

// Register accepts the multipart registration form. The created record stays
// pending until an administrative approval; no token is issued here.
func (h *StudentsHandler) Register(c *fiber.Ctx) error {
	input := services.StudentInput{
		FirstName:     c.FormValue("firstName"),
		LastName:      c.FormValue("lastName"),
		Email:         c.FormValue("email"),
		NationalID:    c.FormValue("nationalID"),
		Password:      c.FormValue("password"),
		LanguagesJSON: c.FormValue("languages"),
		AddressJSON:   c.FormValue("address"),
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}
	if len(input.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}
	nationalID := strings.TrimSpace(input.NationalID)
	if len(nationalID) != 13 || !isAllDigits(nationalID) {
		return utils.Error(c, fiber.StatusBadRequest, "nationalID must be 13 digits")
	}

	if fileHeader, err := c.FormFile("photo"); err == nil && fileHeader != nil {
		contentType := fileHeader.Header.Get("Content-Type")
		if !isImageContentType(contentType) {
			return utils.Error(c, fiber.StatusBadRequest, "photo must be a png, jpeg or webp image")
		}
		stream, err := fileHeader.Open()
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded photo")
		}
		defer stream.Close()

		input.PhotoReader = stream
		input.PhotoSize = fileHeader.Size
		input.PhotoContentType = contentType
	}

	student, err := h.Registration.RegisterStudent(c.Context(), input)
	if err != nil {
		var duplicate *services.DuplicateIdentityError
		if errors.As(err, &duplicate) {
			return utils.Error(c, fiber.StatusConflict, duplicate.Field+" is already registered")
		}
		var malformed *services.MalformedInputError
		if errors.As(err, &malformed) {
			return utils.Error(c, fiber.StatusBadRequest, "malformed "+malformed.Field)
		}
		if errors.Is(err, services.ErrUploadFailed) {
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading photo")
		}
		logger.Error("student_registration_failed", err, map[string]interface{}{
			"email": email,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed registering student")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"student": student})
}

type studentLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *StudentsHandler) Login(c *fiber.Ctx) error {
	var req studentLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var student models.Student
	if err := h.DB.First(&student, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if !utils.CheckPassword(req.Password, student.PasswordHash) {
		logger.Warn("student_login_failed", map[string]interface{}{
			"ip":    c.IP(),
			"email": email,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if student.Status != models.StudentStatusApproved {
		return utils.Error(c, fiber.StatusForbidden, "account is pending approval")
	}

	token, err := utils.GenerateToken(student.ID, student.Email, models.RoleStudent)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("student_login", map[string]interface{}{
		"student_id": student.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "student": student})
}

func (h *StudentsHandler) Me(c *fiber.Ctx) error {
	student := middleware.GetCurrentStudent(c)
	if student == nil {
		return utils.Error(c, fiber.StatusForbidden, "student account required")
	}
	return utils.Success(c, fiber.StatusOK, student)
}

func (h *StudentsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))
	status := strings.TrimSpace(c.Query("status"))

	query := h.DB.Model(&models.Student{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR national_id LIKE ?",
			searchValue,
			searchValue,
			searchValue,
			searchValue,
		)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting students")
	}

	var students []models.Student
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&students).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing students")
	}

	return utils.Paginated(c, students, p.Page, p.Limit, total)
}

func (h *StudentsHandler) Get(c *fiber.Ctx) error {
	studentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	var student models.Student
	if err := h.DB.First(&student, "id = ?", studentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "student not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching student")
	}

	return utils.Success(c, fiber.StatusOK, student)
}

// SetStatus is the administrative transition out of pending; registration
// itself never sets anything but pending.
func (h *StudentsHandler) SetStatus(c *fiber.Ctx) error {
	studentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	var req struct {
		Status models.StudentStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch req.Status {
	case models.StudentStatusApproved, models.StudentStatusRejected, models.StudentStatusPending:
	default:
		return utils.Error(c, fiber.StatusBadRequest, "invalid status")
	}

	result := h.DB.Model(&models.Student{}).Where("id = ?", studentID).Update("status", req.Status)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating status")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "student not found")
	}

	identity := middleware.GetIdentity(c)
	if identity != nil {
		logger.InfoWithUser(identity.ID.String(), "student_status_changed", map[string]interface{}{
			"student_id": studentID.String(),
			"status":     string(req.Status),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"status": req.Status})
}

// Update edits profile fields. The photo re-upload is optional here, and the
// address keeps the same lenient parsing as registration.
func (h *StudentsHandler) Update(c *fiber.Ctx) error {
	studentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	var student models.Student
	if err := h.DB.First(&student, "id = ?", studentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "student not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching student")
	}

	changed := false
	if value := strings.TrimSpace(c.FormValue("firstName")); value != "" {
		student.FirstName = value
		changed = true
	}
	if value := strings.TrimSpace(c.FormValue("lastName")); value != "" {
		student.LastName = value
		changed = true
	}
	if raw := c.FormValue("languages"); strings.TrimSpace(raw) != "" {
		var languages []string
		if err := json.Unmarshal([]byte(raw), &languages); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "malformed languages")
		}
		student.Languages = languages
		changed = true
	}
	if raw := c.FormValue("address"); strings.TrimSpace(raw) != "" {
		var address models.Address
		if err := json.Unmarshal([]byte(raw), &address); err != nil {
			logger.Warn("address_defaulted", map[string]interface{}{
				"student_id": studentID.String(),
				"error":      err.Error(),
			})
			address = models.Address{}
		}
		student.Address = address
		changed = true
	}

	if fileHeader, err := c.FormFile("photo"); err == nil && fileHeader != nil {
		contentType := fileHeader.Header.Get("Content-Type")
		if !isImageContentType(contentType) {
			return utils.Error(c, fiber.StatusBadRequest, "photo must be a png, jpeg or webp image")
		}
		stream, err := fileHeader.Open()
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded photo")
		}
		defer stream.Close()

		url, err := h.Store.UploadImage(c.Context(), stream, fileHeader.Size, contentType)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading photo")
		}
		student.PhotoURL = &url
		changed = true
	}

	if !changed {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Save(&student).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating student")
	}

	return utils.Success(c, fiber.StatusOK, student)
}

// ListCourses reports the student's active enrollments, derived from the
// enrollments table the same way the course roster is.
func (h *StudentsHandler) ListCourses(c *fiber.Ctx) error {
	studentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	var student models.Student
	if err := h.DB.First(&student, "id = ?", studentID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "student not found")
	}

	var courses []models.Course
	err = h.DB.Model(&models.Course{}).
		Joins("JOIN enrollments ON enrollments.course_id = courses.id").
		Where("enrollments.student_id = ? AND enrollments.status = ?", studentID, models.EnrollmentStatusActive).
		Order("courses.code ASC").
		Find(&courses).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing enrolled courses")
	}

	return utils.Success(c, fiber.StatusOK, courses)
}

func (h *StudentsHandler) Delete(c *fiber.Ctx) error {
	studentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	result := h.DB.Delete(&models.Student{}, "id = ?", studentID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting student")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "student not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "student deleted"})
}
