package models

type Course struct {
	BaseModel
	Code        string       `json:"code" gorm:"type:varchar(20);uniqueIndex;not null"`
	Title       string       `json:"title" gorm:"type:varchar(255);not null"`
	Description string       `json:"description" gorm:"type:text"`
	Credits     int          `json:"credits" gorm:"not null;default:0"`
	Enrollments []Enrollment `json:"-" gorm:"foreignKey:CourseID"`
}
