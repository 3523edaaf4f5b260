package handlers

import (
	"strings"
	"time"

	"github.com/academia/backend/internal/database"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CoursesHandler struct {
	DB *gorm.DB
}

func NewCoursesHandler(db *gorm.DB) *CoursesHandler {
	return &CoursesHandler{DB: db}
}

type courseRequest struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Credits     int    `json:"credits"`
}

func (h *CoursesHandler) Create(c *fiber.Ctx) error {
	var req courseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || strings.TrimSpace(req.Title) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code and title are required")
	}
	if req.Credits < 0 {
		return utils.Error(c, fiber.StatusBadRequest, "credits cannot be negative")
	}

	course := models.Course{
		Code:        code,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Credits:     req.Credits,
	}
	if err := h.DB.Create(&course).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return utils.Error(c, fiber.StatusConflict, "course code already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating course")
	}

	return utils.Success(c, fiber.StatusCreated, course)
}

func (h *CoursesHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.Course{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(code) LIKE ? OR LOWER(title) LIKE ?", searchValue, searchValue)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting courses")
	}

	var courses []models.Course
	if err := utils.ApplyPagination(query.Order("code ASC"), p).Find(&courses).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing courses")
	}

	return utils.Paginated(c, courses, p.Page, p.Limit, total)
}

func (h *CoursesHandler) Get(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching course")
	}

	return utils.Success(c, fiber.StatusOK, course)
}

func (h *CoursesHandler) Update(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Credits     *int    `json:"credits"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		value := strings.TrimSpace(*req.Title)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = value
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Credits != nil {
		if *req.Credits < 0 {
			return utils.Error(c, fiber.StatusBadRequest, "credits cannot be negative")
		}
		updates["credits"] = *req.Credits
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.Course{}).Where("id = ?", courseID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating course")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "course not found")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated course")
	}

	return utils.Success(c, fiber.StatusOK, course)
}

func (h *CoursesHandler) Delete(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	result := h.DB.Delete(&models.Course{}, "id = ?", courseID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting course")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "course not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "course deleted"})
}

type enrollRequest struct {
	StudentID string `json:"studentID"`
}

func (h *CoursesHandler) Enroll(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID, err := parseUUID(req.StudentID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "course not found")
	}

	var student models.Student
	if err := h.DB.First(&student, "id = ?", studentID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "student not found")
	}
	if student.Status != models.StudentStatusApproved {
		return utils.Error(c, fiber.StatusBadRequest, "student is not approved")
	}

	enrollment := models.Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: time.Now(),
		Status:     models.EnrollmentStatusActive,
	}
	if err := h.DB.Create(&enrollment).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return utils.Error(c, fiber.StatusConflict, "student is already enrolled in this course")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed enrolling student")
	}

	logger.Info("student_enrolled", map[string]interface{}{
		"student_id": studentID.String(),
		"course_id":  courseID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, enrollment)
}

func (h *CoursesHandler) Drop(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID, err := parseUUID(req.StudentID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}

	result := h.DB.Model(&models.Enrollment{}).
		Where("course_id = ? AND student_id = ? AND status = ?", courseID, studentID, models.EnrollmentStatusActive).
		Update("status", models.EnrollmentStatusDropped)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed dropping enrollment")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "active enrollment not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "enrollment dropped"})
}

// ListStudents derives the course roster from the enrollments table; there
// is no denormalized student list to drift out of sync.
func (h *CoursesHandler) ListStudents(c *fiber.Ctx) error {
	courseID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "course not found")
	}

	var students []models.Student
	err = h.DB.Model(&models.Student{}).
		Joins("JOIN enrollments ON enrollments.student_id = students.id").
		Where("enrollments.course_id = ? AND enrollments.status = ?", courseID, models.EnrollmentStatusActive).
		Order("students.last_name ASC").
		Find(&students).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing enrolled students")
	}

	return utils.Success(c, fiber.StatusOK, students)
}
