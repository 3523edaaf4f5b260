package models

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

func IsValidAttendanceStatus(status AttendanceStatus) bool {
	switch status {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	default:
		return false
	}
}

type AttendanceRecord struct {
	BaseModel
	StudentID  uuid.UUID        `json:"studentID" gorm:"type:uuid;not null;uniqueIndex:idx_attendance_entry"`
	CourseID   uuid.UUID        `json:"courseID" gorm:"type:uuid;not null;uniqueIndex:idx_attendance_entry"`
	Date       string           `json:"date" gorm:"type:varchar(10);not null;uniqueIndex:idx_attendance_entry"`
	Status     AttendanceStatus `json:"status" gorm:"type:varchar(10);not null"`
	MarkedByID uuid.UUID        `json:"markedByID" gorm:"type:uuid;not null"`

	Student Student `json:"-" gorm:"foreignKey:StudentID"`
	Course  Course  `json:"-" gorm:"foreignKey:CourseID"`
}

const AttendanceDateLayout = "2006-01-02"

func ParseAttendanceDate(value string) (string, error) {
	parsed, err := time.Parse(AttendanceDateLayout, value)
	if err != nil {
		return "", err
	}
	return parsed.Format(AttendanceDateLayout), nil
}
