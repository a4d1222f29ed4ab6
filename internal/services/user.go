package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/reviewdb/apiserver/internal/confirm"
	"github.com/reviewdb/apiserver/internal/notify"
	"github.com/reviewdb/apiserver/internal/store"
	"github.com/reviewdb/apiserver/types"
)

const confirmationSubject = "ReviewDB confirmation code"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, search string, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, username string) error
}

// UserService owns account lifecycle: signup, confirmation codes, and
// administrative user management.
type UserService struct {
	repo              UserRepository
	codec             *confirm.Codec
	sender            notify.Sender
	logger            *slog.Logger
	resendOnDuplicate bool
}

func NewUserService(repo UserRepository, codec *confirm.Codec, sender notify.Sender, logger *slog.Logger, resendOnDuplicate bool) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:              repo,
		codec:             codec,
		sender:            sender,
		logger:            logger,
		resendOnDuplicate: resendOnDuplicate,
	}
}

// SignUp registers a new account or re-confirms an existing one.
//
// The identity pair must either be entirely new or match one existing
// account exactly. A username bound to a different email, or an email
// bound to a different username, is a conflict reported against the
// offending field; both are reported when both conflict.
func (s *UserService) SignUp(ctx context.Context, username, email string) (types.User, error) {
	var errs FieldErrors
	validateUsername(&errs, username)
	validateEmail(&errs, email)
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	byUsername, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	usernameFound := err == nil

	byEmail, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	emailFound := err == nil

	switch {
	case usernameFound && emailFound && byUsername.ID == byEmail.ID:
		// Exact match: signup is idempotent.
		if s.resendOnDuplicate {
			s.deliverCode(ctx, byUsername)
		}
		return byUsername, nil

	case usernameFound && (!emailFound || byUsername.ID != byEmail.ID):
		errs.add("username", "username is taken by another account")
		if emailFound {
			errs.add("email", "email is taken by another account")
		}
		return types.User{}, errs

	case emailFound:
		errs.add("email", "email is taken by another account")
		return types.User{}, errs
	}

	user := types.User{
		Username: username,
		Email:    email,
		Role:     types.RoleUser,
	}
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		// A concurrent signup can win the race between the lookups and
		// the insert; the violated constraint tells us which field lost.
		if conflict := conflictFieldErrors(err); conflict != nil {
			return types.User{}, conflict
		}
		return types.User{}, err
	}

	s.deliverCode(ctx, created)
	return created, nil
}

// VerifyCode resolves the username and checks the confirmation code
// against the account's current state.
func (s *UserService) VerifyCode(ctx context.Context, username, code string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}

	if err := s.codec.Verify(user, code, time.Now()); err != nil {
		if errors.Is(err, confirm.ErrExpiredCode) {
			s.logger.Info("expired confirmation code", "username", username)
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context, search string, offset, limit int) ([]types.User, int, error) {
	return s.repo.List(ctx, search, offset, limit)
}

// Create adds an account on behalf of an administrator. Unlike SignUp the
// role is settable and profile fields may be supplied.
func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	var errs FieldErrors
	validateUsername(&errs, user.Username)
	validateEmail(&errs, user.Email)
	validateProfile(&errs, user.FirstName, user.LastName)
	if user.Role != "" && !user.Role.Valid() {
		errs.add("role", "unknown role")
	}
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	if user.Role == "" {
		user.Role = types.RoleUser
	}
	user.NormalizeRole()

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if conflict := conflictFieldErrors(err); conflict != nil {
			return types.User{}, conflict
		}
		return types.User{}, err
	}
	return created, nil
}

// UserPatch is a partial update; nil fields are left unchanged.
type UserPatch struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
	Bio       *string
	Role      *types.Role
}

// Update applies a patch to the named account. Role changes are honored
// only when asAdmin is set; self-service profile updates silently keep
// the stored role.
func (s *UserService) Update(ctx context.Context, username string, patch UserPatch, asAdmin bool) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}

	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.FirstName != nil {
		user.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		user.LastName = *patch.LastName
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.Role != nil && asAdmin {
		user.Role = *patch.Role
	}

	var errs FieldErrors
	validateUsername(&errs, user.Username)
	validateEmail(&errs, user.Email)
	validateProfile(&errs, user.FirstName, user.LastName)
	if !user.Role.Valid() {
		errs.add("role", "unknown role")
	}
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	user.NormalizeRole()

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if conflict := conflictFieldErrors(err); conflict != nil {
			return types.User{}, conflict
		}
		return types.User{}, err
	}
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, username string) error {
	return s.repo.Delete(ctx, username)
}

// deliverCode issues a fresh confirmation code and hands it to the
// notifier. Delivery failures are logged, never propagated: signup is not
// transactional with mail delivery.
func (s *UserService) deliverCode(ctx context.Context, user types.User) {
	code := s.codec.Issue(user, time.Now())
	err := s.sender.Send(ctx, notify.Mail{
		To:      user.Email,
		Subject: confirmationSubject,
		Body:    fmt.Sprintf("Your confirmation code: %s", code),
	})
	if err != nil {
		s.logger.Error("confirmation mail delivery failed",
			"username", user.Username,
			"error", err,
		)
	}
}

func validateUsername(errs *FieldErrors, username string) {
	switch {
	case username == "":
		errs.add("username", "username is required")
	case username == types.ReservedUsername:
		errs.add("username", `"me" is not allowed as a username`)
	case len(username) > types.UsernameMaxLength:
		errs.add("username", fmt.Sprintf("username must be at most %d characters", types.UsernameMaxLength))
	case !types.UsernamePattern.MatchString(username):
		errs.add("username", "username may contain only letters, digits, and . @ + - _")
	}
}

func validateEmail(errs *FieldErrors, email string) {
	switch {
	case email == "":
		errs.add("email", "email is required")
	case len(email) > types.EmailMaxLength:
		errs.add("email", fmt.Sprintf("email must be at most %d characters", types.EmailMaxLength))
	default:
		if _, err := mail.ParseAddress(email); err != nil {
			errs.add("email", "invalid email address")
		}
	}
}

func validateProfile(errs *FieldErrors, firstName, lastName string) {
	if len(firstName) > types.NameMaxLength {
		errs.add("first_name", fmt.Sprintf("first name must be at most %d characters", types.NameMaxLength))
	}
	if len(lastName) > types.NameMaxLength {
		errs.add("last_name", fmt.Sprintf("last name must be at most %d characters", types.NameMaxLength))
	}
}

// conflictFieldErrors maps the store's uniqueness sentinels onto the same
// field-keyed shape the signup conflict table produces.
func conflictFieldErrors(err error) FieldErrors {
	var errs FieldErrors
	if errors.Is(err, store.ErrUsernameTaken) {
		errs.add("username", "username is taken by another account")
	}
	if errors.Is(err, store.ErrEmailTaken) {
		errs.add("email", "email is taken by another account")
	}
	return errs
}
