package accounts

import (
	"context"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/mailer"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
)

// ProfileUpdate: nil не меняется, пустая строка очищает имя/фамилию.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (s *Service) UpdateProfile(ctx context.Context, in ProfileUpdate) (u *models.User, err error) {
	defer func() { metrics.Observe("update_profile", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		u, err = tx.Users.ByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if in.Username != nil && *in.Username != u.Username {
			if err := checkUsername(*in.Username); err != nil {
				return err
			}
			taken, _, err := tx.Users.Taken(ctx, *in.Username, "")
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("there is a user with the same username")
			}
			fields["username"] = *in.Username
		}
		if in.FirstName != nil {
			v, err := namePart(in.FirstName)
			if err != nil {
				return err
			}
			fields["first_name"] = v
		}
		if in.LastName != nil {
			v, err := namePart(in.LastName)
			if err != nil {
				return err
			}
			fields["last_name"] = v
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Users.Update(ctx, u.ID, fields); err != nil {
			return err
		}
		u, err = tx.Users.ByID(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) (err error) {
	defer func() { metrics.Observe("change_password", err) }()
	u, err := s.Self(ctx)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return apperr.AuthFailed("invalid old password")
	}
	if err := checkPassword(newPassword, confirm); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.stores.Users.Update(ctx, u.ID, map[string]any{"password_hash": hash})
}

// RequestEmailChange шлёт подтверждение на новый адрес.
func (s *Service) RequestEmailChange(ctx context.Context, newEmail, password string) (err error) {
	defer func() { metrics.Observe("request_email_change", err) }()
	u, err := s.Self(ctx)
	if err != nil {
		return err
	}
	email, err := checkEmail(newEmail)
	if err != nil {
		return err
	}
	if email == u.Email {
		return apperr.Validation("this is your current email")
	}
	_, taken, err := s.stores.Users.Taken(ctx, "", email)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("there is a user with the same email")
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return apperr.AuthFailed("invalid password")
	}
	return s.issue(ctx, u, email, mailer.TemplateChangeEmail, models.ChangeEmailAction(email),
		func(code string) string { return s.confirmLink(u.Email, code) })
}

// RequestDeletion шлёт подтверждение удаления аккаунта.
func (s *Service) RequestDeletion(ctx context.Context) (err error) {
	defer func() { metrics.Observe("request_deletion", err) }()
	u, err := s.Self(ctx)
	if err != nil {
		return err
	}
	owned, err := s.stores.Groups.CountOwnedBy(ctx, u.ID)
	if err != nil {
		return err
	}
	if owned > 0 {
		return apperr.Conflict("the user owns %d group(s); delete them or pass them to heirs first", owned)
	}
	return s.issue(ctx, u, u.Email, mailer.TemplateDeleteAccount, models.ActionDeleteUser,
		func(code string) string { return s.confirmLink(u.Email, code) })
}

// RequestPasswordReset шлёт ссылку сброса пароля.
func (s *Service) RequestPasswordReset(ctx context.Context, username string) (err error) {
	defer func() { metrics.Observe("request_password_reset", err) }()
	u, err := s.stores.Users.ByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.issue(ctx, u, u.Email, mailer.TemplateResetPassword, models.ActionResetPasswordPermission,
		func(code string) string { return s.resetLink(u.Username, code) })
}

func (s *Service) ResetPassword(ctx context.Context, username, code, newPassword, confirm string) (err error) {
	defer func() { metrics.Observe("reset_password", err) }()
	if err := checkPassword(newPassword, confirm); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		u, err := tx.Users.ByUsername(ctx, username)
		if err != nil {
			return err
		}
		t, err := tx.Tokens.Find(ctx, u.ID, code)
		if err != nil {
			return apperr.NotFound("the link is expired or unavailable")
		}
		if name, _ := t.SplitAction(); name != models.ActionResetPasswordPermission {
			return apperr.NotFound("the link is expired or unavailable")
		}
		if t.Expired(s.now()) {
			return apperr.InvalidState("the link is expired")
		}
		if err := tx.Users.Update(ctx, u.ID, map[string]any{"password_hash": hash}); err != nil {
			return err
		}
		return tx.Tokens.Delete(ctx, t.ID)
	})
	if err == nil {
		logs.Logger.WithFields(logrus.Fields{"user": username}).Info("password reset")
	}
	return err
}
