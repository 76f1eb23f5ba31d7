// Package membership — группы, их участники и предложения о вступлении.
package membership

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/binding"
	"smartinlet/internal/logs"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
	"smartinlet/internal/sanitize"
)

const (
	minGroupName = 3
	maxGroupName = 50
	maxOfferText = 1000
)

type Service struct {
	stores *repo.Stores
	now    func() time.Time
}

func New(stores *repo.Stores) *Service {
	return &Service{stores: stores, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) log(op string, actor *access.Identity, fields logrus.Fields) {
	logs.Logger.WithFields(fields).WithFields(logrus.Fields{"op": op, "actor": actor.Username}).Info("membership changed")
}

func groupName(name string) (string, error) {
	name = sanitize.Text(name)
	if n := utf8.RuneCountInString(name); n < minGroupName || n > maxGroupName {
		return "", apperr.Validation("group name must be %d-%d characters", minGroupName, maxGroupName)
	}
	return name, nil
}

// CreateGroup создаёт группу; создатель становится владельцем и участником с полными правами.
func (s *Service) CreateGroup(ctx context.Context, name string, allowUserOffers bool) (v *repo.GroupView, err error) {
	defer func() { metrics.Observe("create_group", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	if name, err = groupName(name); err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		taken, err := tx.Groups.NameTaken(ctx, name)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("group with the same name already exists")
		}
		g := &models.Group{Name: name, OwnerID: actor.UserID, JoinOffersFromUsersAllowed: allowUserOffers}
		if err := tx.Groups.Create(ctx, g); err != nil {
			return err
		}
		m := &models.GroupMember{GroupID: g.ID, UserID: actor.UserID, CanEditMembers: true, CanEditDevices: true}
		if err := tx.Members.Create(ctx, m); err != nil {
			return err
		}
		v, err = tx.Groups.View(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("create_group", actor, logrus.Fields{"group": name})
	return v, nil
}

// GetGroup: публичная карточка группы.
func (s *Service) GetGroup(ctx context.Context, name string) (*repo.GroupView, error) {
	return s.stores.Groups.View(ctx, name)
}

func (s *Service) SearchGroups(ctx context.Context, query string, p paging.Page) (paging.Result[repo.GroupView], error) {
	items, total, err := s.stores.Groups.Search(ctx, query, p)
	if err != nil {
		return paging.Result[repo.GroupView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// GroupUpdate: изменяемые владельцем поля; nil не меняется.
type GroupUpdate struct {
	Name                       *string `json:"name"`
	JoinOffersFromUsersAllowed *bool   `json:"joinOffersFromUsersAllowed"`
}

// UpdateGroup меняет имя и/или политику предложений. Только владелец.
func (s *Service) UpdateGroup(ctx context.Context, name string, in GroupUpdate) (v *repo.GroupView, err error) {
	defer func() { metrics.Observe("update_group", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := tx.Groups.ByName(ctx, name)
		if err != nil {
			return err
		}
		if !g.IsOwner(actor.UserID) {
			return apperr.Forbidden("you are not the owner of the group")
		}
		fields := map[string]any{}
		if in.Name != nil {
			newName, err := groupName(*in.Name)
			if err != nil {
				return err
			}
			if newName != g.Name {
				taken, err := tx.Groups.NameTaken(ctx, newName)
				if err != nil {
					return err
				}
				if taken {
					return apperr.Conflict("group with the same name already exists")
				}
				fields["name"] = newName
				g.Name = newName
			}
		}
		if in.JoinOffersFromUsersAllowed != nil && *in.JoinOffersFromUsersAllowed != g.JoinOffersFromUsersAllowed {
			fields["join_offers_from_users_allowed"] = *in.JoinOffersFromUsersAllowed
		}
		if len(fields) > 0 {
			if err := tx.Groups.Update(ctx, g.ID, fields); err != nil {
				return err
			}
		}
		v, err = tx.Groups.View(ctx, g.Name)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("update_group", actor, logrus.Fields{"group": name, "name": v.Name})
	return v, nil
}

// DeleteGroup: удаление группы владельцем. С наследником (id пользователя-участника)
// группа передаётся ему, а строка прежнего владельца удаляется. Без наследника все
// устройства группы освобождаются и группа удаляется вместе с участниками и предложениями.
func (s *Service) DeleteGroup(ctx context.Context, name string, heirUserID *uint) (err error) {
	defer func() { metrics.Observe("delete_group", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if heirUserID != nil && *heirUserID == actor.UserID {
		return apperr.Validation("the owner can not be the heir")
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := tx.Groups.ByName(ctx, name)
		if err != nil {
			return err
		}
		if !g.IsOwner(actor.UserID) {
			return apperr.Forbidden("you are not the owner of the group")
		}
		own, err := tx.Members.Get(ctx, g.ID, actor.UserID)
		if err != nil {
			return err
		}

		if heirUserID != nil {
			heir, err := tx.Members.Get(ctx, g.ID, *heirUserID)
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.Validation("the heir is not a member of the group")
			}
			if err != nil {
				return err
			}
			if err := tx.Members.Update(ctx, heir.ID, map[string]any{"can_edit_members": true, "can_edit_devices": true}); err != nil {
				return err
			}
			if err := tx.Groups.Update(ctx, g.ID, map[string]any{"owner_id": heir.UserID}); err != nil {
				return err
			}
			return tx.Members.Delete(ctx, own.ID)
		}

		if err := binding.ReleaseGroup(ctx, tx, g.ID, s.now()); err != nil {
			return err
		}
		if err := tx.Offers.DeleteByGroup(ctx, g.ID); err != nil {
			return err
		}
		if err := tx.Members.DeleteByGroup(ctx, g.ID); err != nil {
			return err
		}
		return tx.Groups.Delete(ctx, g.ID)
	})
	if err != nil {
		return err
	}
	f := logrus.Fields{"group": name}
	if heirUserID != nil {
		f["heir"] = *heirUserID
	}
	s.log("delete_group", actor, f)
	return nil
}

// LeaveGroup: участник (не владелец) покидает группу.
func (s *Service) LeaveGroup(ctx context.Context, name string) (err error) {
	defer func() { metrics.Observe("leave_group", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := tx.Groups.ByName(ctx, name)
		if err != nil {
			return err
		}
		if g.IsOwner(actor.UserID) {
			return apperr.InvalidState("the owner must delete the group or pass it to an heir")
		}
		m, err := tx.Members.Get(ctx, g.ID, actor.UserID)
		if err != nil {
			return err
		}
		return tx.Members.Delete(ctx, m.ID)
	})
	if err == nil {
		s.log("leave_group", actor, logrus.Fields{"group": name})
	}
	return err
}

// QuitOrDelete: владелец удаляет группу (или передаёт её), остальные выходят.
func (s *Service) QuitOrDelete(ctx context.Context, name string, heirUserID *uint) error {
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	g, err := s.stores.Groups.ByName(ctx, name)
	if err != nil {
		return err
	}
	if g.IsOwner(actor.UserID) {
		return s.DeleteGroup(ctx, name, heirUserID)
	}
	return s.LeaveGroup(ctx, name)
}

func offerText(text *string) (*string, error) {
	text = sanitize.OptionalText(text)
	if text != nil && utf8.RuneCountInString(*text) > maxOfferText {
		return nil, apperr.Validation("offer text must be at most %d characters", maxOfferText)
	}
	return text, nil
}
