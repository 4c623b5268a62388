package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/lackhoa/fractal-sky/internal/store"
)

func newTestService() *Service {
	s := NewService(store.NewMemory(), "test-secret")
	s.cost = bcrypt.MinCost
	return s
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	reg, err := s.Register(ctx, "a@example.com", "password1", "Ada")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	userID, err := s.ValidateToken(reg.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != reg.User.ID {
		t.Fatalf("token subject %q, want %q", userID, reg.User.ID)
	}

	if _, err := s.Register(ctx, "a@example.com", "password2", "Ada"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	login, err := s.Login(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("login returned another user")
	}
	if _, err := s.Login(ctx, "a@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login(ctx, "b@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	u, err := s.GetUser(ctx, reg.User.ID)
	if err != nil || u.DisplayName != "Ada" {
		t.Fatalf("get user: %+v %v", u, err)
	}
	if _, err := s.GetUser(ctx, "user_missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := newTestService()
	token, err := s.issueToken("user_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewService(store.NewMemory(), "other-secret")
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected signature mismatch")
	}

	s.now = func() time.Time { return time.Now().Add(tokenTTL + time.Hour) }
	if _, err := s.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	s.now = time.Now

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user_1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := s.ValidateToken(unsigned); err == nil {
		t.Fatalf("expected alg none to be rejected")
	}

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, _ := noSub.SignedString([]byte("test-secret"))
	if _, err := s.ValidateToken(signed); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandlerStatusCodes(t *testing.T) {
	h := NewHandler(newTestService())

	cases := []struct {
		name string
		fn   http.HandlerFunc
		body string
		want int
	}{
		{"bad json", h.Register, `{`, http.StatusBadRequest},
		{"missing fields", h.Register, `{"email":"a@example.com"}`, http.StatusBadRequest},
		{"short password", h.Register, `{"email":"a@example.com","password":"short","displayName":"A"}`, http.StatusBadRequest},
		{"bad email", h.Register, `{"email":"nope","password":"password1","displayName":"A"}`, http.StatusBadRequest},
		{"register", h.Register, `{"email":" A@Example.com ","password":"password1","displayName":"A"}`, http.StatusCreated},
		{"duplicate", h.Register, `{"email":"a@example.com","password":"password1","displayName":"A"}`, http.StatusConflict},
		{"login missing", h.Login, `{"email":"a@example.com"}`, http.StatusBadRequest},
		{"login wrong", h.Login, `{"email":"a@example.com","password":"password2"}`, http.StatusUnauthorized},
		{"login", h.Login, `{"email":"A@EXAMPLE.COM","password":"password1"}`, http.StatusOK},
	}
	for _, tc := range cases {
		rec := post(tc.fn, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestMiddleware(t *testing.T) {
	s := newTestService()
	token, _ := s.issueToken("user_42")

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	s.AuthMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec = httptest.NewRecorder()
	s.AuthMiddleware(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.AuthMiddleware(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "user_42" {
		t.Fatalf("bearer: status %d user %q", rec.Code, seen)
	}

	seen = ""
	rec = httptest.NewRecorder()
	s.QueryTokenMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	if rec.Code != http.StatusNoContent || seen != "user_42" {
		t.Fatalf("query token: status %d user %q", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	s.QueryTokenMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage query token: status %d", rec.Code)
	}
}

func TestMeHandler(t *testing.T) {
	s := newTestService()
	reg, err := s.Register(context.Background(), "a@example.com", "password1", "Ada")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	h := NewHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(WithUserID(req.Context(), reg.User.ID))
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var got User
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Email != "a@example.com" {
		t.Fatalf("unexpected user %+v", got)
	}
}
