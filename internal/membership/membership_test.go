package membership_test

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"smartinlet/internal/apperr"
	"smartinlet/internal/binding"
	"smartinlet/internal/membership"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
	"smartinlet/internal/testutil"
)

type env struct {
	db  *gorm.DB
	fx  *testutil.Fixtures
	svc *membership.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock()
	return &env{
		db:  db,
		fx:  testutil.NewFixtures(t, db),
		svc: membership.New(repo.New(db)).WithClock(clock.Now),
	}
}

func (e *env) members(t *testing.T, g *models.Group) []models.GroupMember {
	t.Helper()
	var out []models.GroupMember
	if err := e.db.Where("group_id = ?", g.ID).Order("id").Find(&out).Error; err != nil {
		t.Fatalf("load members: %v", err)
	}
	return out
}

func (e *env) offers(t *testing.T) []models.JoinOffer {
	t.Helper()
	var out []models.JoinOffer
	if err := e.db.Find(&out).Error; err != nil {
		t.Fatalf("load offers: %v", err)
	}
	return out
}

func TestCreateGroup(t *testing.T) {
	e := setup(t)
	alice := e.fx.User("alice")
	ctx := testutil.As(alice)

	v, err := e.svc.CreateGroup(ctx, "garden", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Name != "garden" || v.Owner != "alice" || !v.JoinOffersFromUsersAllowed {
		t.Fatalf("view = %+v", v)
	}
	if _, err := e.svc.CreateGroup(testutil.As(e.fx.User("bob")), "garden", false); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate name: want Conflict, got %v", err)
	}
	if _, err := e.svc.CreateGroup(ctx, "ab", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("short name: want Validation, got %v", err)
	}
	if _, err := e.svc.CreateGroup(context.Background(), "orchard", false); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("anonymous: want Unauthenticated, got %v", err)
	}

	res, err := e.svc.ListMembers(ctx, "garden", paging.Page{})
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(res.Items) != 1 || !res.Items[0].CanEditMembers || !res.Items[0].CanEditDevices {
		t.Fatalf("creator membership = %+v", res.Items)
	}
}

func TestUpdateGroupOwnerOnly(t *testing.T) {
	e := setup(t)
	alice, bob := e.fx.User("alice"), e.fx.User("bob")
	g := e.fx.Group("garden", alice, false)
	e.fx.Member(g, bob, true, true)
	e.fx.Group("orchard", bob, false)

	name := "orchard"
	if _, err := e.svc.UpdateGroup(testutil.As(bob), "garden", membership.GroupUpdate{Name: &name}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-owner: want Forbidden, got %v", err)
	}
	if _, err := e.svc.UpdateGroup(testutil.As(alice), "garden", membership.GroupUpdate{Name: &name}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("taken name: want Conflict, got %v", err)
	}
	name = "greenhouse"
	allow := true
	v, err := e.svc.UpdateGroup(testutil.As(alice), "garden", membership.GroupUpdate{Name: &name, JoinOffersFromUsersAllowed: &allow})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v.Name != "greenhouse" || !v.JoinOffersFromUsersAllowed {
		t.Fatalf("view = %+v", v)
	}
}

func TestCrossOffersCollapseIntoOneMember(t *testing.T) {
	e := setup(t)
	owner, a := e.fx.User("owner"), e.fx.User("anna")
	g := e.fx.Group("garden", owner, true)

	fromUser, err := e.svc.SendOfferToGroup(testutil.As(a), "garden", nil)
	if err != nil {
		t.Fatalf("user offer: %v", err)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "anna", nil); err != nil {
		t.Fatalf("group offer: %v", err)
	}
	if n := len(e.offers(t)); n != 2 {
		t.Fatalf("offers before accept = %d", n)
	}

	m, err := e.svc.AnswerUserOffer(testutil.As(owner), "garden", fromUser.ID, true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m == nil || m.UserName != "anna" || m.CanEditMembers || m.CanEditDevices {
		t.Fatalf("new member = %+v", m)
	}
	if n := len(e.offers(t)); n != 0 {
		t.Fatalf("offers after accept = %d, want 0", n)
	}
	count := 0
	for _, row := range e.members(t, g) {
		if row.UserID == a.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("member rows for anna = %d", count)
	}
}

func TestOfferRejections(t *testing.T) {
	e := setup(t)
	owner, a, b := e.fx.User("owner"), e.fx.User("anna"), e.fx.User("boris")
	g := e.fx.Group("garden", owner, false)
	e.fx.Member(g, b, false, true)

	if _, err := e.svc.SendOfferToGroup(testutil.As(a), "garden", nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("closed group: want Forbidden, got %v", err)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(b), "garden", "anna", nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("no canEditMembers: want Forbidden, got %v", err)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "boris", nil); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("already member: want Conflict, got %v", err)
	}
	text := "  <i>welcome</i> "
	v, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "anna", &text)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if v.Text == nil || *v.Text != "welcome" {
		t.Fatalf("offer text = %v", v.Text)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "anna", nil); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate: want Conflict, got %v", err)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "nobody", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown user: want NotFound, got %v", err)
	}

	// чужое приглашение ответить нельзя
	if _, err := e.svc.AnswerGroupOffer(testutil.As(b), v.ID, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("foreign offer: want NotFound, got %v", err)
	}
	if _, err := e.svc.AnswerGroupOffer(testutil.As(a), v.ID, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if n := len(e.offers(t)); n != 0 {
		t.Fatalf("offers after reject = %d", n)
	}
	if len(e.members(t, g)) != 2 {
		t.Fatalf("reject must not add a member")
	}
}

func TestCancelOffers(t *testing.T) {
	e := setup(t)
	owner, a := e.fx.User("owner"), e.fx.User("anna")
	e.fx.Group("garden", owner, true)

	toUser, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "anna", nil)
	if err != nil {
		t.Fatalf("send to user: %v", err)
	}
	toGroup, err := e.svc.SendOfferToGroup(testutil.As(a), "garden", nil)
	if err != nil {
		t.Fatalf("send to group: %v", err)
	}

	if err := e.svc.CancelGroupOffer(testutil.As(owner), "garden", toGroup.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cancel user's offer as group: want NotFound, got %v", err)
	}
	if err := e.svc.CancelGroupOffer(testutil.As(owner), "garden", toUser.ID); err != nil {
		t.Fatalf("cancel group offer: %v", err)
	}
	if err := e.svc.CancelUserOffer(testutil.As(a), toGroup.ID); err != nil {
		t.Fatalf("cancel user offer: %v", err)
	}
	if n := len(e.offers(t)); n != 0 {
		t.Fatalf("offers left = %d", n)
	}
}

func TestListOffers(t *testing.T) {
	e := setup(t)
	owner := e.fx.User("owner")
	e.fx.Group("garden", owner, true)
	for _, name := range []string{"carl", "anna", "boris"} {
		e.fx.User(name)
		if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", name, nil); err != nil {
			t.Fatalf("send to %s: %v", name, err)
		}
	}

	res, err := e.svc.ListGroupOffers(testutil.As(owner), "garden", membership.Sent, repo.OfferSort{}, paging.Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, o := range res.Items {
		names = append(names, o.UserName)
	}
	if len(names) != 3 || names[0] != "anna" || names[2] != "carl" {
		t.Fatalf("sent offers by user = %v", names)
	}

	res, err = e.svc.ListGroupOffers(testutil.As(owner), "garden", membership.Received, repo.OfferSort{}, paging.Page{})
	if err != nil || len(res.Items) != 0 {
		t.Fatalf("received offers = %v, err %v", res.Items, err)
	}

	anna, _ := e.fx.Stores.Users.ByUsername(context.Background(), "anna")
	mine, err := e.svc.ListUserOffers(testutil.As(anna), membership.Received, repo.OfferSort{ByDate: true, Desc: true}, paging.Page{})
	if err != nil {
		t.Fatalf("user offers: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].GroupName != "garden" || !mine.Items[0].SentByGroup {
		t.Fatalf("anna's received offers = %+v", mine.Items)
	}
}

func TestEditAndKickMember(t *testing.T) {
	e := setup(t)
	owner, mod, guest := e.fx.User("owner"), e.fx.User("moderator"), e.fx.User("guest")
	g := e.fx.Group("garden", owner, false)
	ownerRow := e.members(t, g)[0]
	modRow := e.fx.Member(g, mod, true, false)
	guestRow := e.fx.Member(g, guest, false, false)

	if _, err := e.svc.EditMember(testutil.As(mod), "garden", modRow.ID, true, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("edit self: want Forbidden, got %v", err)
	}
	if _, err := e.svc.EditMember(testutil.As(mod), "garden", ownerRow.ID, false, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("edit owner: want Forbidden, got %v", err)
	}
	v, err := e.svc.EditMember(testutil.As(mod), "garden", guestRow.ID, false, true)
	if err != nil {
		t.Fatalf("edit guest: %v", err)
	}
	if v.CanEditMembers || !v.CanEditDevices {
		t.Fatalf("guest rights = %+v", v)
	}

	if err := e.svc.KickMember(testutil.As(guest), "garden", modRow.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("kick without right: want Forbidden, got %v", err)
	}
	if err := e.svc.KickMember(testutil.As(mod), "garden", modRow.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("kick self: want Forbidden, got %v", err)
	}
	if err := e.svc.KickMember(testutil.As(mod), "garden", ownerRow.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("kick owner: want Forbidden, got %v", err)
	}
	if err := e.svc.KickMember(testutil.As(mod), "garden", guestRow.ID); err != nil {
		t.Fatalf("kick guest: %v", err)
	}
	if n := len(e.members(t, g)); n != 2 {
		t.Fatalf("members after kick = %d", n)
	}
}

func TestDeleteGroupWithHeir(t *testing.T) {
	e := setup(t)
	owner, heir, other := e.fx.User("owner"), e.fx.User("heir"), e.fx.User("other")
	g := e.fx.Group("garden", owner, false)
	e.fx.Member(g, heir, false, false)
	e.fx.Member(g, other, false, true)
	d := e.fx.Inlet("inlet-code")
	e.fx.ClaimInlet(d, g)

	if err := e.svc.DeleteGroup(testutil.As(heir), "garden", nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-owner delete: want Forbidden, got %v", err)
	}
	if err := e.svc.DeleteGroup(testutil.As(owner), "garden", &owner.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("owner as heir: want Validation, got %v", err)
	}
	stranger := e.fx.User("stranger")
	if err := e.svc.DeleteGroup(testutil.As(owner), "garden", &stranger.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("non-member heir: want Validation, got %v", err)
	}

	if err := e.svc.DeleteGroup(testutil.As(owner), "garden", &heir.ID); err != nil {
		t.Fatalf("delete with heir: %v", err)
	}
	got, err := e.fx.Stores.Groups.ByName(context.Background(), "garden")
	if err != nil {
		t.Fatalf("group vanished: %v", err)
	}
	if got.OwnerID != heir.ID {
		t.Fatalf("owner = %d, want %d", got.OwnerID, heir.ID)
	}
	rows := e.members(t, g)
	if len(rows) != 2 {
		t.Fatalf("members = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.UserID == owner.ID {
			t.Fatalf("old owner still a member")
		}
		if r.UserID == heir.ID && (!r.CanEditMembers || !r.CanEditDevices) {
			t.Fatalf("heir not promoted: %+v", r)
		}
	}
	if d := e.fx.ReloadInlet(d.ID); d.GroupID == nil || *d.GroupID != g.ID {
		t.Fatalf("group lost its inlet")
	}
}

func TestDeleteGroupReleasesDevices(t *testing.T) {
	e := setup(t)
	owner := e.fx.User("owner")
	g := e.fx.Group("garden", owner, false)
	e.fx.Member(g, e.fx.User("guest"), false, false)
	d := e.fx.Inlet("inlet-code")
	air := e.fx.Sensor(models.KindAir, "air-code")
	e.fx.ClaimInlet(d, g)
	e.fx.ClaimSensor(air, g)
	engine := binding.New(e.fx.Stores, e.fx.Hasher)
	if err := engine.SetControlMode(testutil.As(owner), "garden", d.ID, models.ControlAir, &air.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := e.svc.SendOfferToUser(testutil.As(owner), "garden", "owner", nil); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("offer to a member: want Conflict, got %v", err)
	}

	if err := e.svc.DeleteGroup(testutil.As(owner), "garden", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.fx.Stores.Groups.ByName(context.Background(), "garden"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("group still exists: %v", err)
	}
	if n := len(e.members(t, g)); n != 0 {
		t.Fatalf("orphan members = %d", n)
	}
	inlet := e.fx.ReloadInlet(d.ID)
	if inlet.GroupID != nil || inlet.ControlType != models.ControlManual || inlet.AirSensorID != nil {
		t.Fatalf("inlet not released: %+v", inlet)
	}
	if s := e.fx.ReloadSensor(models.KindAir, air.ID); s.GroupID != nil || s.InletDeviceID != nil {
		t.Fatalf("sensor not released: %+v", s)
	}
	e.fx.CheckBindings(e.db)
}

func TestQuitOrDelete(t *testing.T) {
	e := setup(t)
	owner, guest := e.fx.User("owner"), e.fx.User("guest")
	g := e.fx.Group("garden", owner, false)
	e.fx.Member(g, guest, false, false)

	if err := e.svc.LeaveGroup(testutil.As(owner), "garden"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("owner leave: want InvalidState, got %v", err)
	}
	if err := e.svc.QuitOrDelete(testutil.As(guest), "garden", nil); err != nil {
		t.Fatalf("guest quit: %v", err)
	}
	if n := len(e.members(t, g)); n != 1 {
		t.Fatalf("members after quit = %d", n)
	}
	if err := e.svc.QuitOrDelete(testutil.As(owner), "garden", nil); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := e.svc.GetGroup(context.Background(), "garden"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("group still visible: %v", err)
	}
}
