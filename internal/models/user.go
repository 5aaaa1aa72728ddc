package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent      UserRole = "student"
	RoleOrganization UserRole = "organization"
	RoleAuthority    UserRole = "authority"
	RoleAdmin        UserRole = "admin"
)

type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	FullName string   `json:"full_name" gorm:"not null;size:100"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role     UserRole `json:"role" gorm:"-"`

	// OrgID is set for organization actors; nil for everyone else.
	OrgID *string `json:"org_id" gorm:"size:255;index"`

	AvatarURL *string `json:"avatar_url" gorm:"size:500"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// Organization returns the actor's organization id, or "" when the actor is
// not an organization actor.
func (u *User) Organization() string {
	if u.OrgID == nil {
		return ""
	}
	return *u.OrgID
}
