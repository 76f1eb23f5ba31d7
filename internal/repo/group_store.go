package repo

import (
	"context"

	"gorm.io/gorm"

	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

type GroupStore struct{ base }

// GroupView: группа с именем владельца.
type GroupView struct {
	Name                       string `json:"name"`
	Owner                      string `json:"owner"`
	JoinOffersFromUsersAllowed bool   `json:"joinOffersFromUsersAllowed"`
}

func (s *GroupStore) Create(ctx context.Context, g *models.Group) error {
	return mapErr(s.q(ctx).Omit("Owner").Create(g).Error, "")
}

func (s *GroupStore) ByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	if err := s.one(ctx).Where("name = ?", name).First(&g).Error; err != nil {
		return nil, mapErr(err, "group not found")
	}
	return &g, nil
}

func (s *GroupStore) NameTaken(ctx context.Context, name string) (bool, error) {
	var n int64
	err := s.q(ctx).Model(&models.Group{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

func (s *GroupStore) CountOwnedBy(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.Group{}).Where("owner_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *GroupStore) Update(ctx context.Context, id uint, fields map[string]any) error {
	return mapErr(s.q(ctx).Model(&models.Group{}).Where("id = ?", id).Updates(fields).Error, "group not found")
}

func (s *GroupStore) Delete(ctx context.Context, id uint) error {
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(&models.Group{}).Error, "group not found")
}

func (s *GroupStore) View(ctx context.Context, name string) (*GroupView, error) {
	var v GroupView
	err := s.views(ctx).Where("g.name = ?", name).Take(&v).Error
	if err != nil {
		return nil, mapErr(err, "group not found")
	}
	return &v, nil
}

func (s *GroupStore) Search(ctx context.Context, query string, p paging.Page) ([]GroupView, int64, error) {
	var total int64
	if err := contains(s.q(ctx).Model(&models.Group{}), "name", query).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []GroupView
	err := contains(s.views(ctx), "g.name", query).Order("g.name").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

func (s *GroupStore) views(ctx context.Context) *gorm.DB {
	return s.q(ctx).Table("user_groups AS g").
		Select("g.name AS name, u.username AS owner, g.join_offers_from_users_allowed AS join_offers_from_users_allowed").
		Joins("JOIN users u ON u.id = g.owner_id")
}

type MemberStore struct{ base }

// MemberView: участник с именами группы и пользователя.
type MemberView struct {
	ID             uint   `json:"id"`
	GroupName      string `json:"group"`
	UserName       string `json:"user"`
	CanEditMembers bool   `json:"canEditMembers"`
	CanEditDevices bool   `json:"canEditDevices"`
}

func (s *MemberStore) Create(ctx context.Context, m *models.GroupMember) error {
	return mapErr(s.q(ctx).Omit("Group", "User").Create(m).Error, "")
}

// Get: членство пользователя в группе.
func (s *MemberStore) Get(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	var m models.GroupMember
	err := s.one(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error
	if err != nil {
		return nil, mapErr(err, "you are not a member of the group")
	}
	return &m, nil
}

// ByID: строка участника по id в пределах группы.
func (s *MemberStore) ByID(ctx context.Context, groupID, memberID uint) (*models.GroupMember, error) {
	var m models.GroupMember
	err := s.one(ctx).Where("id = ? AND group_id = ?", memberID, groupID).First(&m).Error
	if err != nil {
		return nil, mapErr(err, "member not found")
	}
	return &m, nil
}

func (s *MemberStore) Exists(ctx context.Context, groupID, userID uint) (bool, error) {
	var n int64
	err := s.q(ctx).Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&n).Error
	return n > 0, err
}

func (s *MemberStore) Update(ctx context.Context, id uint, fields map[string]any) error {
	return mapErr(s.q(ctx).Model(&models.GroupMember{}).Where("id = ?", id).Updates(fields).Error, "member not found")
}

func (s *MemberStore) Delete(ctx context.Context, id uint) error {
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(&models.GroupMember{}).Error, "member not found")
}

func (s *MemberStore) DeleteByGroup(ctx context.Context, groupID uint) error {
	return s.q(ctx).Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error
}

func (s *MemberStore) DeleteByUser(ctx context.Context, userID uint) error {
	return s.q(ctx).Where("user_id = ?", userID).Delete(&models.GroupMember{}).Error
}

func (s *MemberStore) CountByGroup(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.GroupMember{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

func (s *MemberStore) View(ctx context.Context, id uint) (*MemberView, error) {
	var v MemberView
	if err := s.views(ctx).Where("m.id = ?", id).Take(&v).Error; err != nil {
		return nil, mapErr(err, "member not found")
	}
	return &v, nil
}

func (s *MemberStore) List(ctx context.Context, groupID uint, p paging.Page) ([]MemberView, int64, error) {
	total, err := s.CountByGroup(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	var out []MemberView
	err = s.views(ctx).Where("m.group_id = ?", groupID).Order("u.username").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

// ListForUser: членства пользователя во всех группах.
func (s *MemberStore) ListForUser(ctx context.Context, userID uint, p paging.Page) ([]MemberView, int64, error) {
	var total int64
	if err := s.q(ctx).Model(&models.GroupMember{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []MemberView
	err := s.views(ctx).Where("m.user_id = ?", userID).Order("g.name").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

func (s *MemberStore) views(ctx context.Context) *gorm.DB {
	return s.q(ctx).Table("group_members AS m").
		Select("m.id AS id, g.name AS group_name, u.username AS user_name, m.can_edit_members AS can_edit_members, m.can_edit_devices AS can_edit_devices").
		Joins("JOIN user_groups g ON g.id = m.group_id").
		Joins("JOIN users u ON u.id = m.user_id")
}
