package membership

import (
	"context"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
)

// Направление списка предложений относительно стороны, которая его запрашивает.
type Direction int

const (
	Sent Direction = iota
	Received
)

// membersEditor проверяет, что actor — участник группы с правом canEditMembers.
func membersEditor(ctx context.Context, tx *repo.Stores, name string, actor *access.Identity) (*models.Group, *models.GroupMember, error) {
	g, err := tx.Groups.ByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	m, err := tx.Members.Get(ctx, g.ID, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !m.CanEditMembers {
		return nil, nil, apperr.Forbidden("you are not allowed to manage members of the group")
	}
	return g, m, nil
}

// checkOffer отклоняет повторное предложение в том же направлении и предложение участнику.
func checkOffer(ctx context.Context, tx *repo.Stores, groupID, userID uint, sentByGroup bool) error {
	dup, err := tx.Offers.Exists(ctx, groupID, userID, sentByGroup)
	if err != nil {
		return err
	}
	if dup {
		return apperr.Conflict("join offer is already sent")
	}
	member, err := tx.Members.Exists(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member {
		return apperr.Conflict("the user already is a member of the group")
	}
	return nil
}

// SendOfferToUser: группа приглашает пользователя.
func (s *Service) SendOfferToUser(ctx context.Context, name, username string, text *string) (v *repo.OfferView, err error) {
	defer func() { metrics.Observe("send_offer_to_user", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	if text, err = offerText(text); err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, _, err := membersEditor(ctx, tx, name, actor)
		if err != nil {
			return err
		}
		u, err := tx.Users.ByUsername(ctx, username)
		if err != nil {
			return err
		}
		if err := checkOffer(ctx, tx, g.ID, u.ID, true); err != nil {
			return err
		}
		o := &models.JoinOffer{GroupID: g.ID, UserID: u.ID, SentByGroup: true, Text: text, SentAt: s.now()}
		if err := tx.Offers.Create(ctx, o); err != nil {
			return err
		}
		v, err = tx.Offers.View(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("send_offer_to_user", actor, logrus.Fields{"group": name, "user": username})
	return v, nil
}

// SendOfferToGroup: пользователь просится в группу, если та принимает такие предложения.
func (s *Service) SendOfferToGroup(ctx context.Context, name string, text *string) (v *repo.OfferView, err error) {
	defer func() { metrics.Observe("send_offer_to_group", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	if text, err = offerText(text); err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := tx.Groups.ByName(ctx, name)
		if err != nil {
			return err
		}
		if !g.JoinOffersFromUsersAllowed {
			return apperr.Forbidden("the group does not accept join offers from users")
		}
		if err := checkOffer(ctx, tx, g.ID, actor.UserID, false); err != nil {
			return err
		}
		o := &models.JoinOffer{GroupID: g.ID, UserID: actor.UserID, Text: text, SentAt: s.now()}
		if err := tx.Offers.Create(ctx, o); err != nil {
			return err
		}
		v, err = tx.Offers.View(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("send_offer_to_group", actor, logrus.Fields{"group": name})
	return v, nil
}

// accept создаёт участника без прав и удаляет предложения пары в обоих направлениях.
func accept(ctx context.Context, tx *repo.Stores, o *models.JoinOffer) (*repo.MemberView, error) {
	m := &models.GroupMember{GroupID: o.GroupID, UserID: o.UserID}
	if err := tx.Members.Create(ctx, m); err != nil {
		return nil, err
	}
	if err := tx.Offers.DeletePair(ctx, o.GroupID, o.UserID); err != nil {
		return nil, err
	}
	return tx.Members.View(ctx, m.ID)
}

// AnswerUserOffer: группа отвечает на предложение пользователя.
// При принятии возвращается новый участник, при отказе — nil.
func (s *Service) AnswerUserOffer(ctx context.Context, name string, offerID uint, accepted bool) (v *repo.MemberView, err error) {
	defer func() { metrics.Observe("answer_user_offer", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, _, err := membersEditor(ctx, tx, name, actor)
		if err != nil {
			return err
		}
		o, err := tx.Offers.ByID(ctx, offerID)
		if err != nil {
			return err
		}
		if o.SentByGroup || o.GroupID != g.ID {
			return apperr.NotFound("offer not found")
		}
		if !accepted {
			return tx.Offers.Delete(ctx, o.ID)
		}
		v, err = accept(ctx, tx, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("answer_user_offer", actor, logrus.Fields{"group": name, "offer": offerID, "accepted": accepted})
	return v, nil
}

// AnswerGroupOffer: пользователь отвечает на приглашение группы.
func (s *Service) AnswerGroupOffer(ctx context.Context, offerID uint, accepted bool) (v *repo.MemberView, err error) {
	defer func() { metrics.Observe("answer_group_offer", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		o, err := tx.Offers.ByID(ctx, offerID)
		if err != nil {
			return err
		}
		if !o.SentByGroup || o.UserID != actor.UserID {
			return apperr.NotFound("offer not found")
		}
		if !accepted {
			return tx.Offers.Delete(ctx, o.ID)
		}
		v, err = accept(ctx, tx, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log("answer_group_offer", actor, logrus.Fields{"offer": offerID, "accepted": accepted})
	return v, nil
}

// CancelGroupOffer отзывает приглашение, отправленное группой.
func (s *Service) CancelGroupOffer(ctx context.Context, name string, offerID uint) (err error) {
	defer func() { metrics.Observe("cancel_group_offer", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	return s.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, _, err := membersEditor(ctx, tx, name, actor)
		if err != nil {
			return err
		}
		o, err := tx.Offers.ByID(ctx, offerID)
		if err != nil {
			return err
		}
		if !o.SentByGroup || o.GroupID != g.ID {
			return apperr.NotFound("offer not found")
		}
		return tx.Offers.Delete(ctx, o.ID)
	})
}

// CancelUserOffer отзывает собственное предложение пользователя.
func (s *Service) CancelUserOffer(ctx context.Context, offerID uint) (err error) {
	defer func() { metrics.Observe("cancel_user_offer", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	return s.stores.Tx(ctx, func(tx *repo.Stores) error {
		o, err := tx.Offers.ByID(ctx, offerID)
		if err != nil {
			return err
		}
		if o.SentByGroup || o.UserID != actor.UserID {
			return apperr.NotFound("offer not found")
		}
		return tx.Offers.Delete(ctx, o.ID)
	})
}

// ListGroupOffers: предложения группы: Sent — её приглашения, Received — заявки пользователей.
// Доступно участникам с правом canEditMembers.
func (s *Service) ListGroupOffers(ctx context.Context, name string, dir Direction, sort repo.OfferSort, p paging.Page) (paging.Result[repo.OfferView], error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return paging.Result[repo.OfferView]{}, err
	}
	g, _, err := membersEditor(ctx, s.stores, name, actor)
	if err != nil {
		return paging.Result[repo.OfferView]{}, err
	}
	items, total, err := s.stores.Offers.ListForGroup(ctx, g.ID, dir == Sent, sort, p)
	if err != nil {
		return paging.Result[repo.OfferView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// ListUserOffers: предложения текущего пользователя: Sent — его заявки, Received — приглашения.
func (s *Service) ListUserOffers(ctx context.Context, dir Direction, sort repo.OfferSort, p paging.Page) (paging.Result[repo.OfferView], error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return paging.Result[repo.OfferView]{}, err
	}
	items, total, err := s.stores.Offers.ListForUser(ctx, actor.UserID, dir == Received, sort, p)
	if err != nil {
		return paging.Result[repo.OfferView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}
