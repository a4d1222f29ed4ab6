package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reviewdb/apiserver/internal/confirm"
	"github.com/reviewdb/apiserver/internal/notify"
	"github.com/reviewdb/apiserver/internal/services"
	"github.com/reviewdb/apiserver/internal/store"
	"github.com/reviewdb/apiserver/types"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

// memUserRepo is an in-memory services.UserRepository for handler tests.
type memUserRepo struct {
	nextID int
	users  map[string]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[string]types.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context, search string, offset, limit int) ([]types.User, int, error) {
	var out []types.User
	for _, u := range r.users {
		if search == "" || strings.Contains(u.Username, search) {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
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
	r.users[user.Username] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	for name, u := range r.users {
		if u.ID == user.ID {
			delete(r.users, name)
			r.users[user.Username] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Delete(_ context.Context, username string) error {
	if _, ok := r.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

// mailbox records outbound mail so tests can read delivered codes.
type mailbox struct {
	sent []notify.Mail
}

func (m *mailbox) Send(_ context.Context, mail notify.Mail) error {
	m.sent = append(m.sent, mail)
	return nil
}

func (m *mailbox) Close() error { return nil }

func (m *mailbox) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.sent)
	body := m.sent[len(m.sent)-1].Body
	i := strings.LastIndexByte(body, ' ')
	require.Positive(t, i)
	return body[i+1:]
}

type authTestEnv struct {
	router chi.Router
	repo   *memUserRepo
	mail   *mailbox
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	repo := newMemUserRepo()
	mail := &mailbox{}
	codec, err := confirm.New(testSecret, 30*time.Minute)
	require.NoError(t, err)

	userService := services.NewUserService(repo, codec, mail, nil, true)
	authHandler := NewAuthHandler(userService, testSecret, time.Hour)
	userHandler := NewUserHandler(userService)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.Group(func(r chi.Router) {
		r.Use(authHandler.Authenticate)
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, userHandler)
		})
	})

	return &authTestEnv{router: router, repo: repo, mail: mail}
}

func (e *authTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// obtainToken walks the full signup/token exchange for a fresh account.
func (e *authTestEnv) obtainToken(t *testing.T, username, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/signup", "", SignUpRequest{Username: username, Email: email})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/token", "", TokenRequest{
		Username:         username,
		ConfirmationCode: e.mail.lastCode(t),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[TokenResponse](t, rec).Token
}

func TestSignUpEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", SignUpRequest{
		Username: "alice",
		Email:    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SignUpResponse](t, rec)
	require.Equal(t, "alice", resp.Username)
	require.Equal(t, "alice@example.com", resp.Email)
	require.Len(t, env.mail.sent, 1)

	// Identical repeat is idempotent and re-delivers a code.
	rec = env.do(t, http.MethodPost, "/auth/signup", "", SignUpRequest{
		Username: "alice",
		Email:    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.mail.sent, 2)
}

func TestSignUpEndpointConflicts(t *testing.T) {
	env := newAuthTestEnv(t)
	env.obtainToken(t, "alice", "alice@example.com")
	env.obtainToken(t, "bob", "bob@example.com")

	cases := []struct {
		name   string
		req    SignUpRequest
		fields []string
	}{
		{"username taken", SignUpRequest{Username: "alice", Email: "new@example.com"}, []string{"username"}},
		{"email taken", SignUpRequest{Username: "carol", Email: "alice@example.com"}, []string{"email"}},
		{"both taken", SignUpRequest{Username: "alice", Email: "bob@example.com"}, []string{"email", "username"}},
		{"reserved username", SignUpRequest{Username: "me", Email: "me@example.com"}, []string{"username"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/auth/signup", "", tc.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			fields := decodeBody[map[string][]string](t, rec)
			require.Len(t, fields, len(tc.fields))
			for _, f := range tc.fields {
				require.NotEmpty(t, fields[f])
			}
		})
	}
}

func TestSignUpEndpointRejectsBadJSON(t *testing.T) {
	env := newAuthTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpoint(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", SignUpRequest{
		Username: "alice",
		Email:    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	code := env.mail.lastCode(t)

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decodeBody[map[string][]string](t, rec)
		require.NotEmpty(t, fields["username"])
		require.NotEmpty(t, fields["confirmation_code"])
	})

	t.Run("unknown username is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{
			Username:         "nobody",
			ConfirmationCode: code,
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong code is 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{
			Username:         "alice",
			ConfirmationCode: code + "0",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid exchange", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{
			Username:         "alice",
			ConfirmationCode: code,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, decodeBody[TokenResponse](t, rec).Token)
	})
}

func TestAuthenticateMiddleware(t *testing.T) {
	env := newAuthTestEnv(t)
	token := env.obtainToken(t, "alice", "alice@example.com")

	t.Run("anonymous is rejected by RequireUser", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/users/me", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/users/me", "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		forged, err := issueToken(1, []byte("other-secret"), time.Hour)
		require.NoError(t, err)
		rec := env.do(t, http.MethodGet, "/users/me", forged, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		expired, err := issueToken(1, []byte(testSecret), -time.Minute)
		require.NoError(t, err)
		rec := env.do(t, http.MethodGet, "/users/me", expired, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token resolves the account", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/users/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		profile := decodeBody[UserResponse](t, rec)
		require.Equal(t, "alice", profile.Username)
		require.Equal(t, types.RoleUser, profile.Role)
	})
}

func TestMeUpdateKeepsRole(t *testing.T) {
	env := newAuthTestEnv(t)
	token := env.obtainToken(t, "alice", "alice@example.com")

	rec := env.do(t, http.MethodPatch, "/users/me", token, map[string]any{
		"bio":  "hello",
		"role": "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[UserResponse](t, rec)
	require.Equal(t, "hello", profile.Bio)
	require.Equal(t, types.RoleUser, profile.Role)
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	env := newAuthTestEnv(t)
	token := env.obtainToken(t, "alice", "alice@example.com")

	rec := env.do(t, http.MethodGet, "/users/", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/users/bob/", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserManagementAsAdmin(t *testing.T) {
	env := newAuthTestEnv(t)
	token := env.obtainToken(t, "root", "root@example.com")

	// Promote the account directly in the store, the way an operator would.
	admin := env.repo.users["root"]
	admin.Role = types.RoleAdmin
	env.repo.users["root"] = admin

	rec := env.do(t, http.MethodPost, "/users/", token, map[string]any{
		"username": "mod",
		"email":    "mod@example.com",
		"role":     "moderator",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[UserResponse](t, rec)
	require.Equal(t, types.RoleModerator, created.Role)

	rec = env.do(t, http.MethodGet, "/users/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse[UserResponse]](t, rec)
	require.Equal(t, 2, list.Total)

	rec = env.do(t, http.MethodPatch, "/users/mod/", token, map[string]any{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, types.RoleAdmin, decodeBody[UserResponse](t, rec).Role)

	rec = env.do(t, http.MethodDelete, "/users/mod/", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/users/mod/", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffFlagGrantsAdminAccess(t *testing.T) {
	env := newAuthTestEnv(t)
	token := env.obtainToken(t, "staffer", "staffer@example.com")

	staff := env.repo.users["staffer"]
	staff.IsStaff = true
	env.repo.users["staffer"] = staff

	rec := env.do(t, http.MethodGet, "/users/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountChangeInvalidatesOutstandingCode(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", SignUpRequest{
		Username: "alice",
		Email:    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	oldCode := env.mail.lastCode(t)

	// A fresh signup mails a new code for the same state; both verify.
	rec = env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{Username: "alice", ConfirmationCode: oldCode})
	require.Equal(t, http.StatusOK, rec.Code)

	// Mutating the account invalidates every outstanding code.
	u := env.repo.users["alice"]
	u.Bio = "changed"
	env.repo.users["alice"] = u

	rec = env.do(t, http.MethodPost, "/auth/token", "", TokenRequest{Username: "alice", ConfirmationCode: oldCode})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
