package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/platform/httpx"
	"github.com/greengrocer/api/internal/services"
)

// MeHandlers exposes the caller's own account: profile, balance, and the
// delivered-order count that drives the loyalty tier.
type MeHandlers struct {
	users services.UserService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(users services.UserService) *MeHandlers {
	return &MeHandlers{users: users}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(auth.RequireRole()).Get("/", h.getProfile)
	r.With(auth.RequireRole()).Put("/", h.updateProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	user, err := h.users.GetUser(ctx, identity.UserID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(ctx, services.UpdateUserCommand{
		UserID:      identity.UserID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}
