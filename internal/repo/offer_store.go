package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

type OfferStore struct{ base }

type OfferView struct {
	ID          uint      `json:"id"`
	GroupName   string    `json:"group"`
	UserName    string    `json:"user"`
	Text        *string   `json:"text,omitempty"`
	SentByGroup bool      `json:"sentByGroup"`
	SentAt      time.Time `json:"sentAt"`
}

// OfferSort: порядок списка: по имени контрагента или по дате.
type OfferSort struct {
	ByDate bool
	Desc   bool
}

func (s *OfferStore) Create(ctx context.Context, o *models.JoinOffer) error {
	return mapErr(s.q(ctx).Omit("Group", "User").Create(o).Error, "")
}

func (s *OfferStore) ByID(ctx context.Context, id uint) (*models.JoinOffer, error) {
	var o models.JoinOffer
	if err := s.one(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, mapErr(err, "offer not found")
	}
	return &o, nil
}

// Exists: есть ли предложение для пары (группа, пользователь) в заданном направлении.
func (s *OfferStore) Exists(ctx context.Context, groupID, userID uint, sentByGroup bool) (bool, error) {
	var n int64
	err := s.q(ctx).Model(&models.JoinOffer{}).
		Where("group_id = ? AND user_id = ? AND sent_by_group = ?", groupID, userID, sentByGroup).
		Count(&n).Error
	return n > 0, err
}

func (s *OfferStore) Delete(ctx context.Context, id uint) error {
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(&models.JoinOffer{}).Error, "offer not found")
}

// DeletePair удаляет предложения обоих направлений для пары.
func (s *OfferStore) DeletePair(ctx context.Context, groupID, userID uint) error {
	return s.q(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.JoinOffer{}).Error
}

func (s *OfferStore) DeleteByGroup(ctx context.Context, groupID uint) error {
	return s.q(ctx).Where("group_id = ?", groupID).Delete(&models.JoinOffer{}).Error
}

func (s *OfferStore) DeleteByUser(ctx context.Context, userID uint) error {
	return s.q(ctx).Where("user_id = ?", userID).Delete(&models.JoinOffer{}).Error
}

func (s *OfferStore) View(ctx context.Context, id uint) (*OfferView, error) {
	var v OfferView
	if err := s.views(ctx).Where("o.id = ?", id).Take(&v).Error; err != nil {
		return nil, mapErr(err, "offer not found")
	}
	return &v, nil
}

// ListForGroup: предложения группы; sentByGroup выбирает отправленные или полученные.
func (s *OfferStore) ListForGroup(ctx context.Context, groupID uint, sentByGroup bool, sort OfferSort, p paging.Page) ([]OfferView, int64, error) {
	return s.list(ctx, "o.group_id = ?", groupID, sentByGroup, sort, "u.username", p)
}

// ListForUser: предложения пользователя; sentByGroup=false — отправленные им самим.
func (s *OfferStore) ListForUser(ctx context.Context, userID uint, sentByGroup bool, sort OfferSort, p paging.Page) ([]OfferView, int64, error) {
	return s.list(ctx, "o.user_id = ?", userID, sentByGroup, sort, "g.name", p)
}

func (s *OfferStore) list(ctx context.Context, cond string, id uint, sentByGroup bool, sort OfferSort, nameCol string, p paging.Page) ([]OfferView, int64, error) {
	var total int64
	err := s.q(ctx).Table("join_offers AS o").
		Where(cond, id).Where("o.sent_by_group = ?", sentByGroup).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	order := nameCol
	if sort.ByDate {
		order = "o.sent_at"
	}
	if sort.Desc {
		order += " DESC"
	}
	var out []OfferView
	err = s.views(ctx).Where(cond, id).Where("o.sent_by_group = ?", sentByGroup).
		Order(order).Order("o.id").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

func (s *OfferStore) views(ctx context.Context) *gorm.DB {
	return s.q(ctx).Table("join_offers AS o").
		Select("o.id AS id, g.name AS group_name, u.username AS user_name, o.text AS text, o.sent_by_group AS sent_by_group, o.sent_at AS sent_at").
		Joins("JOIN user_groups g ON g.id = o.group_id").
		Joins("JOIN users u ON u.id = o.user_id")
}
