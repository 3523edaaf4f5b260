package models

type StudentStatus string

const (
	StudentStatusPending  StudentStatus = "pending"
	StudentStatusApproved StudentStatus = "approved"
	StudentStatusRejected StudentStatus = "rejected"
)

// Address is embedded in the student record. Registration tolerates a
// malformed address payload by storing the zero value, so every field is
// optional.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Student struct {
	BaseModel
	FirstName    string        `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string        `json:"lastName" gorm:"type:varchar(100);not null"`
	Email        string        `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	NationalID   string        `json:"nationalID" gorm:"column:national_id;type:varchar(13);uniqueIndex;not null"`
	PasswordHash string        `json:"-" gorm:"type:text;not null"`
	Status       StudentStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	PhotoURL     *string       `json:"photoURL,omitempty" gorm:"type:text"`
	Address      Address       `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	Languages    []string      `json:"languages" gorm:"serializer:json;type:text"`
	Enrollments  []Enrollment  `json:"-" gorm:"foreignKey:StudentID"`
}
