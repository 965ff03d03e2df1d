// ABOUTME: Admin login/logout handlers and token middleware for the HTTP surface
// ABOUTME: Tokens travel in an HttpOnly cookie or an Authorization bearer header

package auth

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// TokenCookieName is the cookie holding the admin token.
const TokenCookieName = "relay_admin_token"

// Service issues admin tokens on login and checks them on later requests.
type Service struct {
	credentials  *Credentials
	verifier     *JWTVerifier
	tokenTTL     time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewService creates a Service. secureCookie marks the cookie Secure for HTTPS deployments.
func NewService(credentials *Credentials, verifier *JWTVerifier, tokenTTL time.Duration, secureCookie bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{
		credentials:  credentials,
		verifier:     verifier,
		tokenTTL:     tokenTTL,
		secureCookie: secureCookie,
		logger:       logger.With("component", "auth"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleLogin accepts a form or JSON body with username and password.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	if req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password required")
		return
	}

	if err := s.credentials.Check(req.Username, req.Password); err != nil {
		s.logger.Warn("admin login failed", "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	token, err := s.verifier.Generate(req.Username, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign admin token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "an error occurred")
		return
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(s.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("admin login successful", "username", req.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt.UTC()})
}

// HandleLogout clears the token cookie. Tokens are stateless, so an already
// copied token stays valid until it expires.
func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Authenticate returns the admin identity carried by r.
func (s *Service) Authenticate(r *http.Request) (*AuthContext, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, ErrInvalidToken
	}
	username, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return &AuthContext{Username: username}, nil
}

// RequireAdmin rejects requests without a valid admin token.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := s.Authenticate(r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
