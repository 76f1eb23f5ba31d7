package membership

import (
	"context"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/metrics"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
)

// ListMembers: участники группы; видны только её участникам.
func (s *Service) ListMembers(ctx context.Context, name string, p paging.Page) (paging.Result[repo.MemberView], error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	g, err := s.stores.Groups.ByName(ctx, name)
	if err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	if _, err := s.stores.Members.Get(ctx, g.ID, actor.UserID); err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	items, total, err := s.stores.Members.List(ctx, g.ID, p)
	if err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// MyGroups: группы, в которых состоит текущий пользователь, с его правами.
func (s *Service) MyGroups(ctx context.Context, p paging.Page) (paging.Result[repo.MemberView], error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	items, total, err := s.stores.Members.ListForUser(ctx, actor.UserID, p)
	if err != nil {
		return paging.Result[repo.MemberView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// EditMember меняет права участника. Свои права и права владельца менять нельзя.
func (s *Service) EditMember(ctx context.Context, name string, memberID uint, canEditMembers, canEditDevices bool) (v *repo.MemberView, err error) {
	defer func() { metrics.Observe("edit_member", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, own, err := membersEditor(ctx, tx, name, actor)
		if err != nil {
			return err
		}
		m, err := tx.Members.ByID(ctx, g.ID, memberID)
		if err != nil {
			return err
		}
		switch {
		case m.ID == own.ID:
			return apperr.Forbidden("you can not edit your own rights")
		case g.IsOwner(m.UserID):
			return apperr.Forbidden("you can not edit the owner of the group")
		}
		if m.CanEditMembers != canEditMembers || m.CanEditDevices != canEditDevices {
			err = tx.Members.Update(ctx, m.ID, map[string]any{
				"can_edit_members": canEditMembers,
				"can_edit_devices": canEditDevices,
			})
			if err != nil {
				return err
			}
		}
		v, err = tx.Members.View(ctx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("edit_member", actor, logrus.Fields{"group": name, "member": memberID, "members": canEditMembers, "devices": canEditDevices})
	return v, nil
}

// KickMember исключает участника. Себя и владельца исключить нельзя.
func (s *Service) KickMember(ctx context.Context, name string, memberID uint) (err error) {
	defer func() { metrics.Observe("kick_member", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, own, err := membersEditor(ctx, tx, name, actor)
		if err != nil {
			return err
		}
		if memberID == own.ID {
			return apperr.Forbidden("you can not kick yourself")
		}
		m, err := tx.Members.ByID(ctx, g.ID, memberID)
		if err != nil {
			return err
		}
		if g.IsOwner(m.UserID) {
			return apperr.Forbidden("you can not kick the owner of the group")
		}
		return tx.Members.Delete(ctx, m.ID)
	})
	if err == nil {
		s.log("kick_member", actor, logrus.Fields{"group": name, "member": memberID})
	}
	return err
}
