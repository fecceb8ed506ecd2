package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookworm/internal/gateway"
	"bookworm/pkg/domain"
	"bookworm/pkg/kv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/auth/login":
			if body["password"] != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Invalid credentials"}`))
				return
			}
			json.NewEncoder(w).Encode(domain.AuthResponse{
				User:  domain.User{ID: "u1", Username: "ann", Email: body["email"]},
				Token: "tok-login",
			})
		case "/auth/register":
			if body["userName"] == "taken" {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"message":"Username already exists"}`))
				return
			}
			json.NewEncoder(w).Encode(domain.AuthResponse{
				User:  domain.User{ID: "u2", Username: body["userName"], Email: body["email"]},
				Token: "tok-register",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newStore(t *testing.T, baseURL string) (*Store, kv.Store) {
	t.Helper()
	kvStore, err := kv.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}
	gw := gateway.New(baseURL, gateway.WithLogger(discardLogger()))
	store := New(kvStore, gw, discardLogger())
	gw.SetTokenSource(store)
	return store, kvStore
}

func TestLoginPersistsAndCheckAuthRestores(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, kvStore := newStore(t, srv.URL)
	res := store.Login(ctx, "ann@example.com", "hunter2")
	if !res.Success {
		t.Fatalf("login failed: %q", res.Error)
	}
	if store.Token() != "tok-login" {
		t.Fatalf("unexpected token: %q", store.Token())
	}
	if user := store.User(); user == nil || user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// Simulated restart: new store over the same persistence.
	gw := gateway.New(srv.URL, gateway.WithLogger(discardLogger()))
	restarted := New(kvStore, gw, discardLogger())
	if restarted.AuthChecked() {
		t.Fatalf("authChecked should start false")
	}
	restarted.CheckAuth(ctx)
	if !restarted.AuthChecked() {
		t.Fatalf("authChecked not set")
	}
	if restarted.Token() != "tok-login" {
		t.Fatalf("restart lost token: %q", restarted.Token())
	}
	user := restarted.User()
	if user == nil || user.ID != "u1" || user.Username != "ann" {
		t.Fatalf("restart lost user: %+v", user)
	}
}

func TestLoginWrongPasswordStaysUnauthenticated(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, _ := newStore(t, srv.URL)
	res := store.Login(ctx, "ann@example.com", "wrong")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Error != "Invalid credentials" {
		t.Fatalf("expected server message, got %q", res.Error)
	}
	if store.Token() != "" || store.User() != nil {
		t.Fatalf("session mutated on failed login")
	}
	if store.Err() != "Invalid credentials" {
		t.Fatalf("error not recorded: %q", store.Err())
	}
}

func TestLoginValidatesLocally(t *testing.T) {
	// Closed server: any network call would fail loudly.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call for invalid input")
	}))
	defer srv.Close()

	store, _ := newStore(t, srv.URL)
	if res := store.Login(context.Background(), "", "pw"); res.Success || res.Error == "" {
		t.Fatalf("expected local validation failure, got %+v", res)
	}
	if res := store.Register(context.Background(), "ann", "", "pw"); res.Success || res.Error == "" {
		t.Fatalf("expected local validation failure, got %+v", res)
	}
}

func TestRegisterPersistsSession(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, _ := newStore(t, srv.URL)
	res := store.Register(ctx, "bob", "bob@example.com", "pw123456")
	if !res.Success {
		t.Fatalf("register failed: %q", res.Error)
	}
	if store.Token() != "tok-register" {
		t.Fatalf("unexpected token: %q", store.Token())
	}

	store.CheckAuth(ctx)
	if store.Token() != "tok-register" {
		t.Fatalf("checkAuth lost registered session")
	}
}

func TestRegisterConflictSurfacesMessage(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()

	store, _ := newStore(t, srv.URL)
	res := store.Register(context.Background(), "taken", "x@example.com", "pw")
	if res.Success || res.Error != "Username already exists" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLogOutTwiceIsIdempotent(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, kvStore := newStore(t, srv.URL)
	if res := store.Login(ctx, "ann@example.com", "hunter2"); !res.Success {
		t.Fatalf("login failed: %q", res.Error)
	}
	if err := store.LogOut(ctx); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := store.LogOut(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if store.Token() != "" || store.User() != nil {
		t.Fatalf("session not cleared")
	}
	if _, found, _ := kvStore.Get(ctx, kv.KeyToken); found {
		t.Fatalf("persisted token survived logout")
	}

	store.CheckAuth(ctx)
	if store.Token() != "" {
		t.Fatalf("stale session resurrected after logout")
	}
}

func TestCheckAuthSwallowsCorruptUserRecord(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, kvStore := newStore(t, srv.URL)
	kvStore.Set(ctx, kv.KeyToken, "tok")
	kvStore.Set(ctx, kv.KeyUser, "{not json")

	store.CheckAuth(ctx)
	if !store.AuthChecked() {
		t.Fatalf("authChecked not set on corrupt state")
	}
	if store.Token() != "" || store.User() != nil {
		t.Fatalf("expected fallback to unauthenticated")
	}
}

func TestCheckAuthTokenWithoutUserIsUnauthenticated(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()
	ctx := context.Background()

	store, kvStore := newStore(t, srv.URL)
	kvStore.Set(ctx, kv.KeyToken, "tok")

	store.CheckAuth(ctx)
	if store.Token() != "" {
		t.Fatalf("token without user must not authenticate")
	}
}

func TestExpiresAtReadsExpClaim(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	store, kvStore := newStore(t, srv.URL)
	ctx := context.Background()
	kvStore.Set(ctx, kv.KeyToken, signed)
	kvStore.Set(ctx, kv.KeyUser, `{"_id":"u1","username":"ann"}`)
	store.CheckAuth(ctx)

	got, ok := store.ExpiresAt()
	if !ok {
		t.Fatalf("expected exp claim")
	}
	if !got.Equal(exp) {
		t.Fatalf("unexpected expiry: got %v want %v", got, exp)
	}
}

func TestExpiresAtFalseForOpaqueToken(t *testing.T) {
	srv := authServer(t)
	defer srv.Close()

	store, kvStore := newStore(t, srv.URL)
	ctx := context.Background()
	kvStore.Set(ctx, kv.KeyToken, "opaque-token")
	kvStore.Set(ctx, kv.KeyUser, `{"_id":"u1"}`)
	store.CheckAuth(ctx)

	if _, ok := store.ExpiresAt(); ok {
		t.Fatalf("opaque token must not report an expiry")
	}
}
