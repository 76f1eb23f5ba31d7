package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"smartinlet/internal/accounts"
	"smartinlet/internal/apperr"
	"smartinlet/internal/membership"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

func registerUserRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/users/sign-up", h.SignUp).Methods(http.MethodPost)
	r.HandleFunc("/users/sign-in", h.SignIn).Methods(http.MethodPost)
	r.HandleFunc("/users/sign-out", h.SignOut).Methods(http.MethodGet)
	r.HandleFunc("/users/confirm-email/{email}", h.ConfirmEmail).Methods(http.MethodGet)
	r.HandleFunc("/users/reset-password-permission", h.ResetPasswordPermission).Methods(http.MethodPost)
	r.HandleFunc("/users/reset-password", h.ResetPassword).Methods(http.MethodPut)

	r.Handle("/users/check", signedIn(h.Check)).Methods(http.MethodGet)
	r.Handle("/users", signedIn(h.SearchUsers)).Methods(http.MethodGet)
	r.Handle("/users", signedIn(h.DeleteSelf)).Methods(http.MethodDelete)
	r.Handle("/users/info", signedIn(h.SelfInfo)).Methods(http.MethodGet)
	r.Handle("/users/info", signedIn(h.UpdateSelfInfo)).Methods(http.MethodPut)
	r.Handle("/users/password", signedIn(h.ChangePassword)).Methods(http.MethodPut)
	r.Handle("/users/email", signedIn(h.ChangeEmail)).Methods(http.MethodPut)
	r.Handle("/users/groups", signedIn(h.MyGroups)).Methods(http.MethodGet)
	r.Handle("/users/{username}/info", signedIn(h.UserInfo)).Methods(http.MethodGet)

	r.Handle("/users/send-join-offer", signedIn(h.SendOfferToGroup)).Methods(http.MethodPost)
	r.Handle("/users/accept-join-offer/{offerId:[0-9]+}", signedIn(h.AnswerGroupOffer)).Methods(http.MethodPost)
	r.Handle("/users/sent-join-offers", signedIn(h.UserOffers(membership.Sent))).Methods(http.MethodGet)
	r.Handle("/users/received-join-offers", signedIn(h.UserOffers(membership.Received))).Methods(http.MethodGet)
	r.Handle("/users/cancel-join-offer/{offerId:[0-9]+}", signedIn(h.CancelUserOffer)).Methods(http.MethodDelete)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req accounts.SignUpInput
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.SignUp(r.Context(), req); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.accounts.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.sessions.SignIn(w, r, u); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, u)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(w, r); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) { ok(w, nil) }

type confirmResponse struct {
	Action string `json:"action"`
}

// ConfirmEmail: ссылка из письма. После удаления аккаунта сессия закрывается.
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		code = q.Get("token")
	}
	if code == "" {
		fail(w, r, apperr.Validation("code is required"))
		return
	}
	action, err := h.accounts.ConfirmToken(r.Context(), mux.Vars(r)["email"], code)
	if err != nil {
		fail(w, r, err)
		return
	}
	if action == models.ActionDeleteUser {
		if err := h.sessions.SignOut(w, r); err != nil {
			fail(w, r, err)
			return
		}
	}
	ok(w, confirmResponse{Action: action})
}

func (h *Handler) ResetPasswordPermission(w http.ResponseWriter, r *http.Request) {
	var req usernameRef
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Username); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type resetPasswordRequest struct {
	Username           string `json:"username"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
	Token              string `json:"token"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	err := h.accounts.ResetPassword(r.Context(), req.Username, req.Token, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.SearchUsers(r.Context(), r.URL.Query().Get("q"), paging.FromQuery(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

func (h *Handler) SelfInfo(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Self(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, u)
}

func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.GetUser(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, u)
}

func (h *Handler) UpdateSelfInfo(w http.ResponseWriter, r *http.Request) {
	var req accounts.ProfileUpdate
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.accounts.UpdateProfile(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, u)
}

type changePasswordRequest struct {
	OldPassword        string `json:"oldPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), req.OldPassword, req.NewPassword, req.ConfirmNewPassword); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type changeEmailRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (h *Handler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.RequestEmailChange(r.Context(), req.Email, req.Password); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) DeleteSelf(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.RequestDeletion(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	res, err := h.groups.MyGroups(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

type groupOfferRequest struct {
	GroupName string  `json:"groupName"`
	Text      *string `json:"text"`
}

func (h *Handler) SendOfferToGroup(w http.ResponseWriter, r *http.Request) {
	var req groupOfferRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.groups.SendOfferToGroup(r.Context(), req.GroupName, req.Text)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, o)
}

func (h *Handler) AnswerGroupOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerId")
	if err != nil {
		fail(w, r, err)
		return
	}
	m, err := h.groups.AnswerGroupOffer(r.Context(), id, r.URL.Query().Get("accepted") == "true")
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, m)
}

func (h *Handler) UserOffers(dir membership.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sort, err := offerSort(r, "group")
		if err != nil {
			fail(w, r, err)
			return
		}
		res, err := h.groups.ListUserOffers(r.Context(), dir, sort, paging.FromQuery(r.URL.Query()))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, res)
	}
}

func (h *Handler) CancelUserOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.groups.CancelUserOffer(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}
