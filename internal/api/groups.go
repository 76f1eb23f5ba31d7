package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"smartinlet/internal/apperr"
	"smartinlet/internal/membership"
	"smartinlet/internal/paging"
)

func registerGroupRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/groups", h.SearchGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupName}/info", h.GroupInfo).Methods(http.MethodGet)

	r.Handle("/groups", signedIn(h.CreateGroup)).Methods(http.MethodPost)
	r.Handle("/groups/{groupName}/info", signedIn(h.UpdateGroup)).Methods(http.MethodPut)
	r.Handle("/groups/{groupName}", signedIn(h.QuitOrDeleteGroup)).Methods(http.MethodDelete)

	r.Handle("/groups/{groupName}/send-join-offer", signedIn(h.SendOfferToUser)).Methods(http.MethodPost)
	r.Handle("/groups/{groupName}/accept-join-offer/{offerId:[0-9]+}", signedIn(h.AnswerUserOffer)).Methods(http.MethodPost)
	r.Handle("/groups/{groupName}/sent-join-offers", signedIn(h.GroupOffers(membership.Sent))).Methods(http.MethodGet)
	r.Handle("/groups/{groupName}/received-join-offers", signedIn(h.GroupOffers(membership.Received))).Methods(http.MethodGet)
	r.Handle("/groups/{groupName}/cancel-join-offer/{offerId:[0-9]+}", signedIn(h.CancelGroupOffer)).Methods(http.MethodDelete)

	r.Handle("/groups/{groupName}/members", signedIn(h.ListMembers)).Methods(http.MethodGet)
	r.Handle("/groups/{groupName}/members/{memberId:[0-9]+}", signedIn(h.EditMember)).Methods(http.MethodPut)
	r.Handle("/groups/{groupName}/members/{memberId:[0-9]+}", signedIn(h.KickMember)).Methods(http.MethodDelete)
}

func (h *Handler) SearchGroups(w http.ResponseWriter, r *http.Request) {
	res, err := h.groups.SearchGroups(r.Context(), r.URL.Query().Get("q"), paging.FromQuery(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

func (h *Handler) GroupInfo(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.GetGroup(r.Context(), mux.Vars(r)["groupName"])
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, g)
}

type createGroupRequest struct {
	Name                       string `json:"name"`
	JoinOffersFromUsersAllowed bool   `json:"joinOffersFromUsersAllowed"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	g, err := h.groups.CreateGroup(r.Context(), req.Name, req.JoinOffersFromUsersAllowed)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, g)
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req membership.GroupUpdate
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	g, err := h.groups.UpdateGroup(r.Context(), mux.Vars(r)["groupName"], req)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, g)
}

// QuitOrDeleteGroup: владелец удаляет группу (heir_id — кому её передать), участник выходит.
func (h *Handler) QuitOrDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var heir *uint
	if v := r.URL.Query().Get("heir_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			fail(w, r, apperr.Validation("invalid heir_id"))
			return
		}
		u := uint(id)
		heir = &u
	}
	if err := h.groups.QuitOrDelete(r.Context(), mux.Vars(r)["groupName"], heir); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type userOfferRequest struct {
	Username string  `json:"username"`
	Text     *string `json:"text"`
}

func (h *Handler) SendOfferToUser(w http.ResponseWriter, r *http.Request) {
	var req userOfferRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.groups.SendOfferToUser(r.Context(), mux.Vars(r)["groupName"], req.Username, req.Text)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, o)
}

func (h *Handler) AnswerUserOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerId")
	if err != nil {
		fail(w, r, err)
		return
	}
	accepted := r.URL.Query().Get("accepted") == "true"
	m, err := h.groups.AnswerUserOffer(r.Context(), mux.Vars(r)["groupName"], id, accepted)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, m)
}

func (h *Handler) GroupOffers(dir membership.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sort, err := offerSort(r, "user")
		if err != nil {
			fail(w, r, err)
			return
		}
		res, err := h.groups.ListGroupOffers(r.Context(), mux.Vars(r)["groupName"], dir, sort, paging.FromQuery(r.URL.Query()))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, res)
	}
}

func (h *Handler) CancelGroupOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.groups.CancelGroupOffer(r.Context(), mux.Vars(r)["groupName"], id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	res, err := h.groups.ListMembers(r.Context(), mux.Vars(r)["groupName"], paging.FromQuery(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

type memberRightsRequest struct {
	CanEditMembers bool `json:"canEditMembers"`
	CanEditDevices bool `json:"canEditDevices"`
}

func (h *Handler) EditMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req memberRightsRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	m, err := h.groups.EditMember(r.Context(), mux.Vars(r)["groupName"], id, req.CanEditMembers, req.CanEditDevices)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, m)
}

func (h *Handler) KickMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.groups.KickMember(r.Context(), mux.Vars(r)["groupName"], id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}
