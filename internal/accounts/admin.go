package accounts

import (
	"context"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/mailer"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
	"smartinlet/internal/sanitize"
)

const (
	maxTitle   = 200
	maxContent = 5000
)

// SetRights выдаёт или снимает права администратора устройств/пользователей.
func (s *Service) SetRights(ctx context.Context, username string, devices, users bool) (out *models.UserShort, err error) {
	defer func() { metrics.Observe("set_rights", err) }()
	actor, err := access.RequireUserAdmin(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		u, err := tx.Users.ByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u.ID == actor.UserID && !users {
			return apperr.Forbidden("you can not revoke your own user administration rights")
		}
		if err := tx.Users.Update(ctx, u.ID, map[string]any{
			"can_administrate_devices": devices,
			"can_administrate_users":   users,
		}); err != nil {
			return err
		}
		u.CanAdministrateDevices, u.CanAdministrateUsers = devices, users
		short := u.Short()
		out = &short
		return nil
	})
	if err == nil {
		logs.Logger.WithFields(logrus.Fields{"actor": actor.Username, "user": username, "devices": devices, "users": users}).Info("rights changed")
	}
	return out, err
}

// SendEmail: произвольное письмо пользователю от администрации.
func (s *Service) SendEmail(ctx context.Context, username, title, content string) (err error) {
	defer func() { metrics.Observe("admin_send_email", err) }()
	if _, err := access.RequireUserAdmin(ctx); err != nil {
		return err
	}
	title, content = sanitize.Text(title), sanitize.Text(content)
	if title == "" || utf8.RuneCountInString(title) > maxTitle {
		return apperr.Validation("title must be 1-%d characters", maxTitle)
	}
	if content == "" || utf8.RuneCountInString(content) > maxContent {
		return apperr.Validation("content must be 1-%d characters", maxContent)
	}
	u, err := s.stores.Users.ByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.mail.SendTemplatedEmail(ctx, u.Email, mailer.TemplateSimple, map[string]string{
		"title":    title,
		"username": u.Username,
		"content":  content,
	})
}

// DeleteUser удаляет пользователя администратором. Уведомление отправляется
// первым; если оно не ушло, ничего не удаляется.
func (s *Service) DeleteUser(ctx context.Context, username string) (err error) {
	defer func() { metrics.Observe("admin_delete_user", err) }()
	actor, err := access.RequireUserAdmin(ctx)
	if err != nil {
		return err
	}
	u, err := s.stores.Users.ByUsername(ctx, username)
	if err != nil {
		return err
	}
	if u.ID == actor.UserID {
		return apperr.Forbidden("use account deletion to delete yourself")
	}
	owned, err := s.stores.Groups.CountOwnedBy(ctx, u.ID)
	if err != nil {
		return err
	}
	if owned > 0 {
		return apperr.Conflict("the user owns %d group(s); delete them or pass them to heirs first", owned)
	}
	err = s.mail.SendTemplatedEmail(ctx, u.Email, mailer.TemplateSimple, map[string]string{
		"title":    "Your account is deleted",
		"username": u.Username,
		"content":  "Your account is deleted by the administration.",
	})
	if err != nil {
		return err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		fresh, err := tx.Users.ByID(ctx, u.ID)
		if err != nil {
			return err
		}
		return deleteUser(ctx, tx, fresh)
	})
	if err == nil {
		logs.Logger.WithFields(logrus.Fields{"actor": actor.Username, "user": username}).Info("user deleted by admin")
	}
	return err
}
