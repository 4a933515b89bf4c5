package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/services"
)

func newMeTestRouter(users services.UserService) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route("/me", NewMeHandlers(users).Routes)
	return r
}

func TestMeHandlersGetProfile(t *testing.T) {
	users := &stubUserService{
		getFn: func(_ context.Context, userID string) (services.User, error) {
			if userID != "usr_cust" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.User{
				ID:              "usr_cust",
				Role:            domain.RoleCustomer,
				DisplayName:     "Ada",
				BalanceCents:    1234,
				DeliveredOrders: 27,
			}, nil
		},
	}
	router := newMeTestRouter(users)

	req := httptest.NewRequest(http.MethodGet, "/me/", nil)
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		User struct {
			ID              string `json:"id"`
			Balance         int64  `json:"balance"`
			DeliveredOrders int64  `json:"delivered_orders"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.User.ID != "usr_cust" || body.User.Balance != 1234 || body.User.DeliveredOrders != 27 {
		t.Fatalf("unexpected user payload %#v", body.User)
	}
}

func TestMeHandlersGetProfileRejectsAnonymous(t *testing.T) {
	router := newMeTestRouter(&stubUserService{})

	req := httptest.NewRequest(http.MethodGet, "/me/", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfile(t *testing.T) {
	var captured services.UpdateUserCommand
	users := &stubUserService{
		updateFn: func(_ context.Context, cmd services.UpdateUserCommand) (services.User, error) {
			captured = cmd
			return services.User{ID: cmd.UserID, Role: domain.RoleCustomer, DisplayName: cmd.DisplayName}, nil
		},
	}
	router := newMeTestRouter(users)

	payload := `{"display_name":"Ada L.","email":"ada@example.com"}`
	req := httptest.NewRequest(http.MethodPut, "/me/", strings.NewReader(payload))
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "usr_cust" || captured.DisplayName != "Ada L." {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestMeHandlersUpdateProfileMapsNotFound(t *testing.T) {
	users := &stubUserService{
		updateFn: func(context.Context, services.UpdateUserCommand) (services.User, error) {
			return services.User{}, services.ErrUserNotFound
		},
	}
	router := newMeTestRouter(users)

	req := httptest.NewRequest(http.MethodPut, "/me/", strings.NewReader(`{"display_name":"Ada"}`))
	req.Header.Set(auth.HeaderUserID, "usr_ghost")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
