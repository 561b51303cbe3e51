package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/staffdir/api"
	"github.com/garnizeh/staffdir/internal/ordering"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/repository"
	"github.com/garnizeh/staffdir/pkg/repository/mock"
)

const (
	testSecret   = "testsecret"
	testUser     = "admin"
	testPassword = "correct horse"
	testPrefix   = "/v1/assets/"
)

var (
	hashOnce sync.Once
	testHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		testHash = string(b)
	})
	return testHash
}

type testServer struct {
	*httptest.Server
	mocks *mock.Mocks
	token string
}

type serverOption func(*api.Deps)

func withAssets(r repository.AssetReader) serverOption {
	return func(d *api.Deps) { d.Assets = r }
}

func withLoginLimit(rate float64, burst int) serverOption {
	return func(d *api.Deps) {
		d.Auth.LoginRate = rate
		d.Auth.LoginBurst = burst
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	m := mock.NewMocks()
	dir, err := roster.NewDirectory(m.Roster, m.Assets, roster.Options{URLPrefix: testPrefix})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	deps := api.Deps{
		Directory: dir,
		Reorder:   ordering.NewManager(m.Roster, time.Minute, 8),
		Auth: api.AuthConfig{
			Username:      testUser,
			PasswordHash:  passwordHash(t),
			JWTSecret:     testSecret,
			TokenDuration: time.Hour,
			LoginRate:     100,
			LoginBurst:    100,
		},
		MaxUploadBytes: 1 << 20,
		Timeout:        5 * time.Second,
		Version:        "test",
	}
	for _, o := range opts {
		o(&deps)
	}
	r, err := api.SetupRoutes(deps)
	if err != nil {
		t.Fatalf("SetupRoutes: %v", err)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	ts := &testServer{Server: srv, mocks: m}
	ts.token = ts.login(t)
	return ts
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": testUser, "password": testPassword}, false)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", res.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.Token == "" {
		t.Fatalf("login: bad body (%v)", err)
	}
	return out.Token
}

// do sends body as JSON (or raw when it is a string) and authenticates when auth is set.
func (s *testServer) do(t *testing.T, method, path string, body any, auth bool) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	res, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return res
}

// call performs an authenticated request, checks the status and decodes the body into out.
func (s *testServer) call(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	res := s.do(t, method, path, body, true)
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != wantStatus {
		t.Fatalf("%s %s: want %d got %d: %s", method, path, wantStatus, res.StatusCode, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, b, err)
		}
	}
}
