package repo

import (
	"context"

	"gorm.io/gorm"

	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

type UserStore struct{ base }

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	return mapErr(s.q(ctx).Create(u).Error, "")
}

func (s *UserStore) ByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.one(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapErr(err, "user not found")
	}
	return &u, nil
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.one(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapErr(err, "user not found")
	}
	return &u, nil
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.one(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, mapErr(err, "user not found")
	}
	return &u, nil
}

// Taken сообщает, заняты ли имя пользователя и email (любой из пустых не проверяется).
func (s *UserStore) Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	var n int64
	if username != "" {
		if err = s.q(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return
		}
		usernameTaken = n > 0
	}
	if email != "" {
		if err = s.q(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return
		}
		emailTaken = n > 0
	}
	return
}

func (s *UserStore) Update(ctx context.Context, id uint, fields map[string]any) error {
	return mapErr(s.q(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error, "user not found")
}

func (s *UserStore) Delete(ctx context.Context, id uint) error {
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(&models.User{}).Error, "user not found")
}

// Search: поиск активированных пользователей по username/имени/фамилии.
func (s *UserStore) Search(ctx context.Context, query string, p paging.Page) ([]models.User, int64, error) {
	q := s.q(ctx).Model(&models.User{}).Where("is_activated = ?", true)
	if query != "" {
		like := "%" + query + "%"
		q = q.Where("(LOWER(username) LIKE LOWER(?) OR LOWER(first_name) LIKE LOWER(?) OR LOWER(last_name) LIKE LOWER(?))",
			like, like, like)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.User
	err := q.Order("username").Scopes(p.Scope).Find(&out).Error
	return out, total, err
}
