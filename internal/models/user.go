package models

import "time"

// User owns every other entity. Currency and timezone are display preferences;
// the timezone also decides where "current month" starts in summaries.
type User struct {
	Base
	Email               string     `gorm:"uniqueIndex;not null" json:"email"`
	Username            string     `gorm:"size:150" json:"username"`
	Password            string     `gorm:"not null" json:"-"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Currency            string     `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Timezone            string     `gorm:"size:64;not null;default:'UTC'" json:"timezone"`
	IsActive            bool       `gorm:"default:true" json:"is_active"`
	RefreshTokenHash    string     `gorm:"size:64" json:"-"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
