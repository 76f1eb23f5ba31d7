package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	FirstName    *string   `gorm:"size:50" json:"firstName,omitempty"`
	LastName     *string   `gorm:"size:50" json:"lastName,omitempty"`
	Email        string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	RegisteredAt time.Time `gorm:"not null" json:"registeredAt"`

	CanAdministrateDevices bool `gorm:"not null" json:"canAdministrateDevices"`
	CanAdministrateUsers   bool `gorm:"not null" json:"canAdministrateUsers"`
	IsActivated            bool `gorm:"not null" json:"isActivated"`
}

// UserShort: публичное представление пользователя без email.
type UserShort struct {
	Username               string  `json:"username"`
	FirstName              *string `json:"firstName,omitempty"`
	LastName               *string `json:"lastName,omitempty"`
	CanAdministrateDevices bool    `json:"canAdministrateDevices"`
	CanAdministrateUsers   bool    `json:"canAdministrateUsers"`
}

func (u *User) Short() UserShort {
	return UserShort{
		Username:               u.Username,
		FirstName:              u.FirstName,
		LastName:               u.LastName,
		CanAdministrateDevices: u.CanAdministrateDevices,
		CanAdministrateUsers:   u.CanAdministrateUsers,
	}
}
