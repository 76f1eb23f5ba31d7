// Package accounts — регистрация, вход, подтверждения по email и администрирование пользователей.
package accounts

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/mailer"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
	"smartinlet/internal/sanitize"
	"smartinlet/internal/secrets"
)

const (
	minUsername = 3
	maxUsername = 50
	minPassword = 6
	maxPassword = 100
	maxNamePart = 50
	codeBytes   = 32
)

type Service struct {
	stores  *repo.Stores
	hasher  secrets.Hasher
	mail    mailer.Sender
	baseURL string
	now     func() time.Time
}

// New: baseURL используется для ссылок в письмах (без завершающего "/").
func New(stores *repo.Stores, hasher secrets.Hasher, mail mailer.Sender, baseURL string) *Service {
	return &Service{
		stores:  stores,
		hasher:  hasher,
		mail:    mail,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) confirmLink(email, code string) string {
	return s.baseURL + "/api/users/confirm-email/" + url.PathEscape(email) + "?code=" + url.QueryEscape(code)
}

func (s *Service) resetLink(username, code string) string {
	return s.baseURL + "/reset-password?username=" + url.QueryEscape(username) + "&code=" + url.QueryEscape(code)
}

// issue отправляет письмо со ссылкой и только после успешной отправки сохраняет код.
func (s *Service) issue(ctx context.Context, u *models.User, to, template, action string, link func(code string) string) error {
	code, err := secrets.RandomCode(codeBytes)
	if err != nil {
		return err
	}
	params := map[string]string{"login": u.Username, "link": link(code)}
	if err := s.mail.SendTemplatedEmail(ctx, to, template, params); err != nil {
		return err
	}
	return s.stores.Tx(ctx, func(tx *repo.Stores) error {
		name, _, _ := strings.Cut(action, ",")
		if err := tx.Tokens.DeleteAction(ctx, u.ID, name); err != nil {
			return err
		}
		return tx.Tokens.Create(ctx, &models.ActivationToken{
			UserID:    u.ID,
			Code:      code,
			Action:    action,
			ExpiresAt: s.now().Add(models.TokenTTL),
		})
	})
}

func checkUsername(name string) error {
	if n := utf8.RuneCountInString(name); n < minUsername || n > maxUsername || name != strings.TrimSpace(name) {
		return apperr.Validation("username must be %d-%d characters without surrounding spaces", minUsername, maxUsername)
	}
	return nil
}

func checkPassword(password, confirm string) error {
	if n := len(password); n < minPassword || n > maxPassword {
		return apperr.Validation("password must be %d-%d characters", minPassword, maxPassword)
	}
	if password != confirm {
		return apperr.Validation("the password is not confirmed")
	}
	return nil
}

func checkEmail(email string) (string, error) {
	a, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || a.Address != strings.TrimSpace(email) {
		return "", apperr.Validation("invalid email")
	}
	return a.Address, nil
}

// namePart: необязательное имя/фамилия; пустая строка превращается в nil.
func namePart(v *string) (*string, error) {
	v = sanitize.OptionalText(v)
	if v != nil && utf8.RuneCountInString(*v) > maxNamePart {
		return nil, apperr.Validation("names must be at most %d characters", maxNamePart)
	}
	return v, nil
}

type SignUpInput struct {
	Username        string  `json:"username"`
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirmPassword"`
}

// SignUp создаёт неактивированного пользователя. Письмо отправляется до записи:
// если отправка не удалась, в базе ничего не появляется.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (err error) {
	defer func() { metrics.Observe("sign_up", err) }()
	if err := checkUsername(in.Username); err != nil {
		return err
	}
	if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return err
	}
	email, err := checkEmail(in.Email)
	if err != nil {
		return err
	}
	first, err := namePart(in.FirstName)
	if err != nil {
		return err
	}
	last, err := namePart(in.LastName)
	if err != nil {
		return err
	}
	userTaken, emailTaken, err := s.stores.Users.Taken(ctx, in.Username, email)
	if err != nil {
		return err
	}
	switch {
	case userTaken:
		return apperr.Conflict("there is a user with the same username")
	case emailTaken:
		return apperr.Conflict("there is a user with the same email")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return err
	}
	code, err := secrets.RandomCode(codeBytes)
	if err != nil {
		return err
	}

	params := map[string]string{"login": in.Username, "link": s.confirmLink(email, code)}
	if err := s.mail.SendTemplatedEmail(ctx, email, mailer.TemplateConfirmRegistration, params); err != nil {
		return err
	}

	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		u := &models.User{
			Username:     in.Username,
			FirstName:    first,
			LastName:     last,
			Email:        email,
			PasswordHash: hash,
			RegisteredAt: s.now(),
		}
		if err := tx.Users.Create(ctx, u); err != nil {
			return err
		}
		return tx.Tokens.Create(ctx, &models.ActivationToken{
			UserID:    u.ID,
			Code:      code,
			Action:    models.ActionConfirmRegistration,
			ExpiresAt: s.now().Add(models.TokenTTL),
		})
	})
	if err == nil {
		logs.Logger.WithFields(logrus.Fields{"user": in.Username}).Info("user signed up")
	}
	return err
}

// SignIn проверяет учётные данные. Неактивированный пользователь не входит.
func (s *Service) SignIn(ctx context.Context, username, password string) (u *models.User, err error) {
	defer func() { metrics.Observe("sign_in", err) }()
	u, err = s.stores.Users.ByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("invalid username")
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, apperr.AuthFailed("invalid password")
	}
	if !u.IsActivated {
		return nil, apperr.Unauthenticated("the user is not activated")
	}
	return u, nil
}

// ConfirmToken выполняет действие кода из письма и возвращает имя действия.
func (s *Service) ConfirmToken(ctx context.Context, email, code string) (action string, err error) {
	defer func() { metrics.Observe("confirm_token", err) }()
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		u, err := tx.Users.ByEmail(ctx, email)
		if err != nil {
			return apperr.NotFound("the link is expired or unavailable")
		}
		t, err := tx.Tokens.Find(ctx, u.ID, code)
		if err != nil {
			return apperr.NotFound("the link is expired or unavailable")
		}
		if t.Expired(s.now()) {
			return apperr.InvalidState("the link is expired")
		}
		var arg string
		action, arg = t.SplitAction()
		switch action {
		case models.ActionConfirmRegistration:
			if err := tx.Users.Update(ctx, u.ID, map[string]any{"is_activated": true}); err != nil {
				return err
			}
		case models.ActionChangeEmail:
			_, taken, err := tx.Users.Taken(ctx, "", arg)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("there is a user with the same email")
			}
			if err := tx.Users.Update(ctx, u.ID, map[string]any{"email": arg}); err != nil {
				return err
			}
		case models.ActionDeleteUser:
			return deleteUser(ctx, tx, u)
		default:
			return apperr.Validation("unknown action")
		}
		return tx.Tokens.Delete(ctx, t.ID)
	})
	if err == nil {
		logs.Logger.WithFields(logrus.Fields{"email": email, "action": action}).Info("token confirmed")
	}
	return action, err
}

// deleteUser удаляет пользователя с его членствами, предложениями и кодами.
// Владелец групп удалён быть не может: сначала группы передаются или удаляются.
func deleteUser(ctx context.Context, tx *repo.Stores, u *models.User) error {
	owned, err := tx.Groups.CountOwnedBy(ctx, u.ID)
	if err != nil {
		return err
	}
	if owned > 0 {
		return apperr.Conflict("the user owns %d group(s); delete them or pass them to heirs first", owned)
	}
	if err := tx.Offers.DeleteByUser(ctx, u.ID); err != nil {
		return err
	}
	if err := tx.Members.DeleteByUser(ctx, u.ID); err != nil {
		return err
	}
	if err := tx.Tokens.DeleteByUser(ctx, u.ID); err != nil {
		return err
	}
	return tx.Users.Delete(ctx, u.ID)
}

// Self: текущий пользователь целиком.
func (s *Service) Self(ctx context.Context) (*models.User, error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.stores.Users.ByID(ctx, actor.UserID)
}

func (s *Service) GetUser(ctx context.Context, username string) (*models.UserShort, error) {
	u, err := s.stores.Users.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	short := u.Short()
	return &short, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string, p paging.Page) (paging.Result[models.UserShort], error) {
	users, total, err := s.stores.Users.Search(ctx, query, p)
	if err != nil {
		return paging.Result[models.UserShort]{}, err
	}
	items := make([]models.UserShort, 0, len(users))
	for i := range users {
		items = append(items, users[i].Short())
	}
	return paging.NewResult(items, p, total), nil
}

// CleanupTokens удаляет просроченные коды.
func (s *Service) CleanupTokens(ctx context.Context) (int64, error) {
	return s.stores.Tokens.DeleteExpired(ctx, s.now())
}
