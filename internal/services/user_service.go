package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/repositories"
)

const (
	userIDPrefix       = "usr_"
	maxDisplayNameRune = 80
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid account data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the account could not be located.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates the account id is already taken or an edit raced.
	ErrUserConflict = errors.New("user: conflict")
)

// UserServiceDeps bundles constructor inputs for the account service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type userService struct {
	users repositories.UserRepository
	clock func() time.Time
	newID func() string
}

// NewUserService constructs the account service with the supplied dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &userService{
		users: deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	role, err := parseRole(cmd.Role)
	if err != nil {
		return User{}, err
	}
	displayName, err := parseDisplayName(cmd.DisplayName)
	if err != nil {
		return User{}, err
	}
	email, err := parseEmail(cmd.Email)
	if err != nil {
		return User{}, err
	}

	now := s.clock()
	user := User{
		ID:          userIDPrefix + s.newID(),
		Role:        role,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	displayName, err := parseDisplayName(cmd.DisplayName)
	if err != nil {
		return User{}, err
	}
	email, err := parseEmail(cmd.Email)
	if err != nil {
		return User{}, err
	}

	existing, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	existing.DisplayName = displayName
	existing.Email = email
	existing.UpdatedAt = s.clock()

	if err := s.users.Update(ctx, existing); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return s.GetUser(ctx, userID)
}

func (s *userService) GetUser(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, role *UserRole, pager Pagination) (domain.CursorPage[User], error) {
	if role != nil {
		if _, err := parseRole(string(*role)); err != nil {
			return domain.CursorPage[User]{}, err
		}
	}
	page, err := s.users.List(ctx, role, pager)
	if err != nil {
		return domain.CursorPage[User]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func parseRole(raw string) (UserRole, error) {
	role := domain.UserRole(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case domain.RoleCustomer, domain.RoleCarrier, domain.RoleOwner:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, raw)
	}
}

func parseDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: display name is required", ErrUserInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRune {
		return "", fmt.Errorf("%w: display name exceeds %d characters", ErrUserInvalidInput, maxDisplayNameRune)
	}
	return name, nil
}

func parseEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("%w: invalid email %q", ErrUserInvalidInput, raw)
	}
	return email, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUserConflict, err)
		}
	}
	return err
}
