// Package access — идентичность вызывающего и проверки глобальных прав.
package access

import (
	"context"

	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
)

// Identity: аутентифицированный пользователь и его глобальные права.
type Identity struct {
	UserID                 uint
	Username               string
	CanAdministrateDevices bool
	CanAdministrateUsers   bool
}

func IdentityOf(u *models.User) *Identity {
	return &Identity{
		UserID:                 u.ID,
		Username:               u.Username,
		CanAdministrateDevices: u.CanAdministrateDevices,
		CanAdministrateUsers:   u.CanAdministrateUsers,
	}
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

// Actor: текущий пользователь или Unauthenticated.
func Actor(ctx context.Context) (*Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthenticated("sign in required")
	}
	return id, nil
}

func RequireDeviceAdmin(ctx context.Context) (*Identity, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if !id.CanAdministrateDevices {
		return nil, apperr.Forbidden("device administration rights required")
	}
	return id, nil
}

func RequireUserAdmin(ctx context.Context) (*Identity, error) {
	id, err := Actor(ctx)
	if err != nil {
		return nil, err
	}
	if !id.CanAdministrateUsers {
		return nil, apperr.Forbidden("user administration rights required")
	}
	return id, nil
}
