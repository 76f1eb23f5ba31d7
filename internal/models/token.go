package models

import (
	"strings"
	"time"
)

// Действия, которые подтверждаются кодом из письма.
const (
	ActionConfirmRegistration     = "confirm-registration"
	ActionChangeEmail             = "change-email"
	ActionDeleteUser              = "delete-user"
	ActionResetPasswordPermission = "reset-password-permission"
)

// TokenTTL: срок жизни кода активации.
const TokenTTL = 12 * time.Hour

type ActivationToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;index"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Code      string    `gorm:"uniqueIndex;size:128;not null"`
	Action    string    `gorm:"size:300;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// ChangeEmailAction кодирует новый адрес в теге действия: "change-email,<email>".
func ChangeEmailAction(email string) string { return ActionChangeEmail + "," + email }

// SplitAction возвращает имя действия и аргумент (если есть).
func (t *ActivationToken) SplitAction() (name, arg string) {
	name, arg, _ = strings.Cut(t.Action, ",")
	return name, arg
}

func (t *ActivationToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }
