package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reviewdb/apiserver/internal/confirm"
	"github.com/reviewdb/apiserver/internal/notify"
	"github.com/reviewdb/apiserver/internal/store"
	"github.com/reviewdb/apiserver/types"
	"github.com/stretchr/testify/require"
)

// fakeUserRepo is an in-memory UserRepository for service tests.
type fakeUserRepo struct {
	nextID    int
	users     map[string]types.User // keyed by username
	createErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[string]types.User)}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context, search string, offset, limit int) ([]types.User, int, error) {
	var out []types.User
	for _, u := range r.users {
		if search == "" || strings.Contains(u.Username, search) {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	if r.createErr != nil {
		return types.User{}, r.createErr
	}
	if _, ok := r.users[user.Username]; ok {
		return types.User{}, store.ErrUsernameTaken
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrEmailTaken
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.Username] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if r.updateErr != nil {
		return types.User{}, r.updateErr
	}
	for name, u := range r.users {
		if u.ID == user.ID {
			delete(r.users, name)
			user.CreatedAt = u.CreatedAt
			user.UpdatedAt = time.Now()
			r.users[user.Username] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Delete(_ context.Context, username string) error {
	if _, ok := r.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

// recordingSender captures every mail handed to it.
type recordingSender struct {
	sent []notify.Mail
	err  error
}

func (s *recordingSender) Send(_ context.Context, m notify.Mail) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *recordingSender) Close() error { return nil }

func newTestUserService(t *testing.T, repo *fakeUserRepo, sender *recordingSender, resend bool) *UserService {
	t.Helper()
	codec, err := confirm.New("test-secret", 30*time.Minute)
	require.NoError(t, err)
	return NewUserService(repo, codec, sender, nil, resend)
}

func TestSignUpCreatesAccountAndMailsCode(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	user, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, types.RoleUser, user.Role)
	require.NotZero(t, user.ID)

	require.Len(t, sender.sent, 1)
	require.Equal(t, "alice@example.com", sender.sent[0].To)
	require.Contains(t, sender.sent[0].Body, "confirmation code")
}

func TestSignUpIdempotentForExactMatch(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	first, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)

	second, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// One mail per signup request when resend is enabled.
	require.Len(t, sender.sent, 2)
	require.Len(t, repo.users, 1)
}

func TestSignUpRepeatWithoutResend(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, false)

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	_, err = svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
}

func TestSignUpConflictTable(t *testing.T) {
	seed := func(t *testing.T) (*UserService, *recordingSender) {
		repo := newFakeUserRepo()
		sender := &recordingSender{}
		svc := newTestUserService(t, repo, sender, true)
		_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
		require.NoError(t, err)
		_, err = svc.SignUp(context.Background(), "bob", "bob@example.com")
		require.NoError(t, err)
		sender.sent = nil
		return svc, sender
	}

	t.Run("username bound to different email", func(t *testing.T) {
		svc, sender := seed(t)
		_, err := svc.SignUp(context.Background(), "alice", "other@example.com")
		var errs FieldErrors
		require.ErrorAs(t, err, &errs)
		require.Equal(t, []string{"username"}, errs.Fields())
		require.Empty(t, sender.sent)
	})

	t.Run("email bound to different username", func(t *testing.T) {
		svc, sender := seed(t)
		_, err := svc.SignUp(context.Background(), "carol", "alice@example.com")
		var errs FieldErrors
		require.ErrorAs(t, err, &errs)
		require.Equal(t, []string{"email"}, errs.Fields())
		require.Empty(t, sender.sent)
	})

	t.Run("both taken by different accounts", func(t *testing.T) {
		svc, sender := seed(t)
		_, err := svc.SignUp(context.Background(), "alice", "bob@example.com")
		var errs FieldErrors
		require.ErrorAs(t, err, &errs)
		require.Equal(t, []string{"email", "username"}, errs.Fields())
		require.Empty(t, sender.sent)
	})
}

func TestSignUpValidation(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	cases := []struct {
		name     string
		username string
		email    string
		field    string
	}{
		{"empty username", "", "a@example.com", "username"},
		{"reserved username", "me", "a@example.com", "username"},
		{"bad characters", "has space", "a@example.com", "username"},
		{"too long username", strings.Repeat("a", types.UsernameMaxLength+1), "a@example.com", "username"},
		{"empty email", "alice", "", "email"},
		{"malformed email", "alice", "not-an-email", "email"},
		{"too long email", "alice", strings.Repeat("a", types.EmailMaxLength) + "@x.com", "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tc.username, tc.email)
			var errs FieldErrors
			require.ErrorAs(t, err, &errs)
			require.Contains(t, errs.Fields(), tc.field)
		})
	}
	require.Empty(t, sender.sent)
	require.Empty(t, repo.users)
}

func TestSignUpMapsCommitTimeConflict(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	// Simulate a concurrent signup winning between the lookups and the
	// insert: the lookups see nothing, the insert hits the constraint.
	repo.createErr = store.ErrUsernameTaken

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	var errs FieldErrors
	require.ErrorAs(t, err, &errs)
	require.Equal(t, []string{"username"}, errs.Fields())
	require.Empty(t, sender.sent)
}

func TestSignUpPropagatesRepoError(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	want := errors.New("connection refused")
	repo.createErr = want

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.ErrorIs(t, err, want)
	var errs FieldErrors
	require.False(t, errors.As(err, &errs))
}

func TestSignUpSucceedsWhenMailFails(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{err: errors.New("smtp down")}
	svc := newTestUserService(t, repo, sender, true)

	user, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	require.NotZero(t, user.ID)
}

func TestVerifyCode(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	created, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)

	code := extractCode(t, sender.sent[0].Body)

	user, err := svc.VerifyCode(context.Background(), "alice", code)
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	// Codes are multi-use within the window.
	_, err = svc.VerifyCode(context.Background(), "alice", code)
	require.NoError(t, err)

	_, err = svc.VerifyCode(context.Background(), "alice", code+"0")
	require.ErrorIs(t, err, confirm.ErrInvalidCode)

	_, err = svc.VerifyCode(context.Background(), "nobody", code)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestVerifyCodeInvalidatedByAccountChange(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	code := extractCode(t, sender.sent[0].Body)

	bio := "now with a bio"
	_, err = svc.Update(context.Background(), "alice", UserPatch{Bio: &bio}, false)
	require.NoError(t, err)

	_, err = svc.VerifyCode(context.Background(), "alice", code)
	require.ErrorIs(t, err, confirm.ErrInvalidCode)
}

func TestCreateNormalizesRole(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	created, err := svc.Create(context.Background(), types.User{
		Username: "staffer",
		Email:    "staffer@example.com",
		IsStaff:  true,
	})
	require.NoError(t, err)
	require.Equal(t, types.RoleAdmin, created.Role)

	created, err = svc.Create(context.Background(), types.User{
		Username: "modstaff",
		Email:    "modstaff@example.com",
		Role:     types.RoleModerator,
		IsStaff:  true,
	})
	require.NoError(t, err)
	require.Equal(t, types.RoleModerator, created.Role)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	_, err := svc.Create(context.Background(), types.User{
		Username: "alice",
		Email:    "alice@example.com",
		Role:     "owner",
	})
	var errs FieldErrors
	require.ErrorAs(t, err, &errs)
	require.Equal(t, []string{"role"}, errs.Fields())
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)

	role := types.RoleAdmin

	// Self-service updates silently keep the stored role.
	updated, err := svc.Update(context.Background(), "alice", UserPatch{Role: &role}, false)
	require.NoError(t, err)
	require.Equal(t, types.RoleUser, updated.Role)

	updated, err = svc.Update(context.Background(), "alice", UserPatch{Role: &role}, true)
	require.NoError(t, err)
	require.Equal(t, types.RoleAdmin, updated.Role)
}

func TestUpdateMapsUniquenessConflict(t *testing.T) {
	repo := newFakeUserRepo()
	sender := &recordingSender{}
	svc := newTestUserService(t, repo, sender, true)

	_, err := svc.SignUp(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)

	repo.updateErr = store.ErrEmailTaken
	email := "bob@example.com"
	_, err = svc.Update(context.Background(), "alice", UserPatch{Email: &email}, false)
	var errs FieldErrors
	require.ErrorAs(t, err, &errs)
	require.Equal(t, []string{"email"}, errs.Fields())
}

// extractCode pulls the code out of the mail body written by deliverCode.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	i := strings.LastIndexByte(body, ' ')
	require.Positive(t, i)
	return body[i+1:]
}
