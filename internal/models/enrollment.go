package models

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// Enrollment is the single source of truth for the student↔course
// association; both directions are derived by query.
type Enrollment struct {
	BaseModel
	StudentID  uuid.UUID        `json:"studentID" gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_student_course"`
	CourseID   uuid.UUID        `json:"courseID" gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_student_course"`
	EnrolledAt time.Time        `json:"enrolledAt" gorm:"not null"`
	Status     EnrollmentStatus `json:"status" gorm:"type:varchar(20);not null;default:'active'"`

	Student Student `json:"-" gorm:"foreignKey:StudentID"`
	Course  Course  `json:"-" gorm:"foreignKey:CourseID"`
}
