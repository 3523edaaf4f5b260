package models

type UserRole string

const (
	UserRoleUser        UserRole = "user"
	UserRoleAdmin       UserRole = "admin"
	UserRoleMaintenance UserRole = "maintenance_office"
	UserRoleTeacher     UserRole = "teacher"

	// RoleStudent only ever appears in tokens issued by the student login
	// flow; it is not a valid value for User.Role.
	RoleStudent UserRole = "student"
)

func IsValidUserRole(role UserRole) bool {
	switch role {
	case UserRoleUser, UserRoleAdmin, UserRoleMaintenance, UserRoleTeacher:
		return true
	default:
		return false
	}
}

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	FirstName    string   `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string   `json:"lastName" gorm:"type:varchar(100);not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	AvatarURL    *string  `json:"avatarURL,omitempty" gorm:"type:text"`
}
