package repo

import (
	"context"
	"time"

	"smartinlet/internal/models"
)

type TokenStore struct{ base }

func (s *TokenStore) Create(ctx context.Context, t *models.ActivationToken) error {
	return mapErr(s.q(ctx).Omit("User").Create(t).Error, "")
}

// Find ищет код, выданный пользователю.
func (s *TokenStore) Find(ctx context.Context, userID uint, code string) (*models.ActivationToken, error) {
	var t models.ActivationToken
	err := s.one(ctx).Where("user_id = ? AND code = ?", userID, code).First(&t).Error
	if err != nil {
		return nil, mapErr(err, "token not found")
	}
	return &t, nil
}

func (s *TokenStore) Delete(ctx context.Context, id uint) error {
	return s.q(ctx).Where("id = ?", id).Delete(&models.ActivationToken{}).Error
}

// DeleteAction удаляет ранее выданные пользователю коды того же действия.
func (s *TokenStore) DeleteAction(ctx context.Context, userID uint, action string) error {
	return s.q(ctx).Where("user_id = ? AND (action = ? OR action LIKE ?)", userID, action, action+",%").
		Delete(&models.ActivationToken{}).Error
}

func (s *TokenStore) DeleteByUser(ctx context.Context, userID uint) error {
	return s.q(ctx).Where("user_id = ?", userID).Delete(&models.ActivationToken{}).Error
}

// DeleteExpired чистит просроченные коды, возвращает число удалённых.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.q(ctx).Where("expires_at <= ?", now).Delete(&models.ActivationToken{})
	return res.RowsAffected, res.Error
}
