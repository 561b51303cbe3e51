package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/garnizeh/staffdir/internal/metrics"
)

const loginLimiterClients = 1024

// AuthConfig is the single admin credential and token settings.
type AuthConfig struct {
	Username      string
	Password      string
	PasswordHash  string
	JWTSecret     string
	TokenDuration time.Duration
	// LoginRate and LoginBurst limit login attempts per client address
	LoginRate  float64
	LoginBurst int
}

type AuthHandler struct {
	username      string
	passwordHash  []byte
	jwtSecret     string
	tokenDuration time.Duration

	rate     rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewAuthHandler creates a new AuthHandler. A plain password is hashed with
// bcrypt here and never kept.
func NewAuthHandler(cfg AuthConfig) (*AuthHandler, error) {
	if cfg.Username == "" {
		return nil, errors.New("admin username is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	hash := []byte(cfg.PasswordHash)
	if len(hash) == 0 {
		if cfg.Password == "" {
			return nil, errors.New("admin password or password hash is required")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, err
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 8 * time.Hour
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 0.5
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 5
	}
	limiters, err := lru.New[string, *rate.Limiter](loginLimiterClients)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{
		username:      cfg.Username,
		passwordHash:  hash,
		jwtSecret:     cfg.JWTSecret,
		tokenDuration: cfg.TokenDuration,
		rate:          rate.Limit(cfg.LoginRate),
		burst:         cfg.LoginBurst,
		limiters:      limiters,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *AuthHandler) allow(r *http.Request) bool {
	addr := clientAddr(r)
	l, ok := h.limiters.Get(addr)
	if !ok {
		l = rate.NewLimiter(h.rate, h.burst)
		h.limiters.Add(addr, l)
	}
	return l.Allow()
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r) {
		metrics.LoginAttempts.WithLabelValues("throttled").Inc()
		w.Header().Set("Retry-After", "2")
		http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) == nil
	if !userOK || !passOK {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		logger.Warn("login rejected", slog.String("remote", clientAddr(r)))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	exp := now.Add(h.tokenDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   h.username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	logger.Info("login", slog.String("user", h.username))
	writeJSON(w, http.StatusOK, authResponse{Token: tokenStr, ExpiresAt: exp.UTC().Truncate(time.Second)})
}

// Logout is client-side for stateless tokens; the client drops the token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := SessionFromContext(r.Context()); ok {
		logger.Info("logout", slog.String("user", s.Username))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}
