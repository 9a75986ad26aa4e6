package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
)

// memUserRepo is an in-memory services.UserRepository for handler tests.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// memContactRepo is an in-memory services.ContactRepository.
type memContactRepo struct {
	mu       sync.Mutex
	nextID   int
	contacts map[int]types.Contact
}

func newMemContactRepo() *memContactRepo {
	return &memContactRepo{nextID: 1, contacts: map[int]types.Contact{}}
}

func (r *memContactRepo) List(_ context.Context, ownerID, offset, limit int) ([]types.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := []types.Contact{}
	for id := 1; id < r.nextID; id++ {
		if contact, ok := r.contacts[id]; ok && contact.OwnerID == ownerID {
			owned = append(owned, contact)
		}
	}
	if offset >= len(owned) {
		return []types.Contact{}, nil
	}
	owned = owned[offset:]
	if limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, nil
}

func (r *memContactRepo) Search(_ context.Context, ownerID int, term string) ([]types.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []types.Contact{}
	for id := 1; id < r.nextID; id++ {
		contact, ok := r.contacts[id]
		if !ok || contact.OwnerID != ownerID {
			continue
		}
		if containsFold(contact.FirstName, term) ||
			containsFold(contact.LastName, term) ||
			containsFold(contact.Email, term) {
			matched = append(matched, contact)
		}
	}
	return matched, nil
}

func (r *memContactRepo) Get(_ context.Context, id, ownerID int) (types.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contact, ok := r.contacts[id]
	if !ok || contact.OwnerID != ownerID {
		return types.Contact{}, store.ErrNotFound
	}
	return contact, nil
}

func (r *memContactRepo) Create(_ context.Context, contact types.Contact) (types.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contact.ID = r.nextID
	r.nextID++
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt
	r.contacts[contact.ID] = contact
	return contact, nil
}

func (r *memContactRepo) Update(_ context.Context, contact types.Contact) (types.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.contacts[contact.ID]
	if !ok || existing.OwnerID != contact.OwnerID {
		return types.Contact{}, store.ErrNotFound
	}
	contact.CreatedAt = existing.CreatedAt
	contact.UpdatedAt = time.Now()
	r.contacts[contact.ID] = contact
	return contact, nil
}

func (r *memContactRepo) Delete(_ context.Context, id, ownerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contact, ok := r.contacts[id]
	if !ok || contact.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(r.contacts, id)
	return nil
}

func containsFold(s, substr string) bool {
	return len(substr) == 0 ||
		bytes.Contains(bytes.ToLower([]byte(s)), bytes.ToLower([]byte(substr)))
}

// recordingMailer captures enqueued emails so tests can inspect tokens.
type recordingMailer struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		verifications: map[string]string{},
		resets:        map[string]string{},
	}
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[to] = token
	return nil
}

func (m *recordingMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[to] = token
	return nil
}

func (m *recordingMailer) verificationToken(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifications[to]
}

func (m *recordingMailer) resetToken(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets[to]
}

type testEnv struct {
	router      *chi.Mux
	userRepo    *memUserRepo
	contactRepo *memContactRepo
	userService *services.UserService
	authService *auth.Service
	mailer      *recordingMailer
}

func newTestEnv(t *testing.T, rateCfg config.RateLimitConfig) *testEnv {
	t.Helper()

	userRepo := newMemUserRepo()
	contactRepo := newMemContactRepo()
	userService := services.NewUserService(userRepo)
	contactService := services.NewContactService(contactRepo)

	authService, err := auth.NewService(config.AuthConfig{
		JWTSecret:  "test-secret",
		BcryptCost: 4,
	})
	require.NoError(t, err)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), rateCfg)
	gate := NewRateLimitGate(limiter, FixedKey("test"), true, zap.NewNop())
	guard := RequireAuth(authService, userService)

	mailer := newRecordingMailer()
	authHandler := NewAuthHandler(userService, authService, mailer, nil, zap.NewNop())
	contactHandler := NewContactHandler(contactService)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, authHandler, gate, guard)
	})
	router.Route("/api/contacts", func(r chi.Router) {
		ContactRouter(r, contactHandler, gate, guard)
	})

	return &testEnv{
		router:      router,
		userRepo:    userRepo,
		contactRepo: contactRepo,
		userService: userService,
		authService: authService,
		mailer:      mailer,
	}
}

func defaultRateCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		AuthLimit:     1000,
		ContactsLimit: 1000,
		DefaultLimit:  1000,
		Window:        time.Minute,
	}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:54321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&value))
	return value
}

// seedUser creates a verified user directly in the repository and returns it
// with a valid access token.
func (env *testEnv) seedUser(t *testing.T, email string, role types.Role) (types.User, string) {
	t.Helper()

	hash, err := env.authService.HashPassword("password123")
	require.NoError(t, err)

	user, err := env.userService.Create(context.Background(), types.User{
		Email:        email,
		FullName:     "Test User",
		Role:         role,
		IsVerified:   true,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	token, err := env.authService.IssueAccessToken(user.Email, user.Role)
	require.NoError(t, err)
	return user, token
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "unexpected status, body: %s", rec.Body.String())
}
