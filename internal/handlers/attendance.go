package handlers

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/academia/backend/internal/database"
	"github.com/academia/backend/internal/middleware"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AttendanceHandler struct {
	DB *gorm.DB
}

func NewAttendanceHandler(db *gorm.DB) *AttendanceHandler {
	return &AttendanceHandler{DB: db}
}

type markAttendanceRequest struct {
	StudentID string `json:"studentID"`
	CourseID  string `json:"courseID"`
	Date      string `json:"date"`
	Status    string `json:"status"`
}

// Mark records one student's attendance for a course on a given day. A
// student must hold an active enrollment in the course, and a day already
// marked cannot be marked again.
func (h *AttendanceHandler) Mark(c *fiber.Ctx) error {
	var req markAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID, err := parseUUID(req.StudentID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid student id")
	}
	courseID, err := parseUUID(req.CourseID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	status := models.AttendanceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !models.IsValidAttendanceStatus(status) {
		return utils.Error(c, fiber.StatusBadRequest, "status must be present, absent or late")
	}

	date, err := models.ParseAttendanceDate(strings.TrimSpace(req.Date))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "date must use the YYYY-MM-DD format")
	}

	var enrollmentCount int64
	err = h.DB.Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, models.EnrollmentStatusActive).
		Count(&enrollmentCount).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking enrollment")
	}
	if enrollmentCount == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "student is not actively enrolled in this course")
	}

	record := models.AttendanceRecord{
		StudentID: studentID,
		CourseID:  courseID,
		Date:      date,
		Status:    status,
	}
	if identity := middleware.GetIdentity(c); identity != nil {
		record.MarkedByID = identity.ID
	}

	if err := h.DB.Create(&record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return utils.Error(c, fiber.StatusConflict, "attendance already marked for this date")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed marking attendance")
	}

	logger.Info("attendance_marked", map[string]interface{}{
		"student_id": studentID.String(),
		"course_id":  courseID.String(),
		"date":       date,
		"status":     string(status),
	})

	return utils.Success(c, fiber.StatusCreated, record)
}

func (h *AttendanceHandler) filteredQuery(c *fiber.Ctx) (*gorm.DB, error) {
	query := h.DB.Model(&models.AttendanceRecord{})

	if raw := strings.TrimSpace(c.Query("studentID")); raw != "" {
		studentID, err := parseUUID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid student id")
		}
		query = query.Where("student_id = ?", studentID)
	}
	if raw := strings.TrimSpace(c.Query("courseID")); raw != "" {
		courseID, err := parseUUID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid course id")
		}
		query = query.Where("course_id = ?", courseID)
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		date, err := models.ParseAttendanceDate(raw)
		if err != nil {
			return nil, fmt.Errorf("from must use the YYYY-MM-DD format")
		}
		query = query.Where("date >= ?", date)
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		date, err := models.ParseAttendanceDate(raw)
		if err != nil {
			return nil, fmt.Errorf("to must use the YYYY-MM-DD format")
		}
		query = query.Where("date <= ?", date)
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.AttendanceStatus(strings.ToLower(raw))
		if !models.IsValidAttendanceStatus(status) {
			return nil, fmt.Errorf("invalid status filter")
		}
		query = query.Where("status = ?", status)
	}

	return query, nil
}

func (h *AttendanceHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query, err := h.filteredQuery(c)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting attendance records")
	}

	var records []models.AttendanceRecord
	if err := utils.ApplyPagination(query.Order("date DESC"), p).Find(&records).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing attendance records")
	}

	return utils.Paginated(c, records, p.Page, p.Limit, total)
}

// ExportCSV streams the filtered records as a CSV report.
func (h *AttendanceHandler) ExportCSV(c *fiber.Ctx) error {
	query, err := h.filteredQuery(c)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var records []models.AttendanceRecord
	if err := query.Order("date ASC").Find(&records).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing attendance records")
	}

	var builder strings.Builder
	writer := csv.NewWriter(&builder)
	if err := writer.Write([]string{"date", "student_id", "course_id", "status"}); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed writing report")
	}
	for _, record := range records {
		row := []string{
			record.Date,
			record.StudentID.String(),
			record.CourseID.String(),
			string(record.Status),
		}
		if err := writer.Write(row); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed writing report")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed writing report")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="attendance.csv"`)
	c.Set(fiber.HeaderContentLength, strconv.Itoa(builder.Len()))
	return c.SendString(builder.String())
}
