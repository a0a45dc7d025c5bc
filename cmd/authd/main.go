// Command authd exposes the authentication engine over HTTP for the
// school platform frontend. It wires the PostgreSQL identity store, the
// Redis session context, and the metrics endpoint; message translation
// and page redirects stay in the frontend.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/scuolasuite/registroauth"
	promexport "github.com/scuolasuite/registroauth/metrics/export/prometheus"
	"github.com/scuolasuite/registroauth/stores/postgres"
)

const sessionCookie = "ra_session"

func main() {
	ctx := context.Background()

	databaseURL := envOr("DATABASE_URL", "postgres://localhost:5432/registro")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	listenAddr := envOr("LISTEN_ADDR", ":8080")

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	builder := registroauth.New().
		WithIdentity(postgres.NewStore(pool)).
		WithSettings(postgres.NewSettings(pool)).
		WithRedis(redisClient).
		WithAuditSink(registroauth.NewJSONWriterSink(os.Stdout)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	if secret := os.Getenv("GATEWAY_SECRET"); secret != "" {
		builder = builder.WithGatewaySecret([]byte(secret))
	}
	if key := os.Getenv("SECRET_KEY"); key != "" {
		raw, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			log.Fatalf("SECRET_KEY: %v", err)
		}
		builder = builder.WithSecretKey(raw)
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	if err := engine.Settings().Reload(ctx); err != nil {
		log.Printf("initial settings load: %v", err)
	}

	srv := &server{engine: engine}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/login", srv.handleForm)
	r.Post("/login/card", srv.handleCard)
	r.Post("/login/token", srv.handleToken)
	r.Get("/login/spid/{responseID}", srv.handleSpid)
	r.Post("/login/gsuite", srv.handleGSuite)
	r.Post("/login/mimspid", srv.handleMimSpid)
	r.Get("/tokenconnect/{segment}", srv.handleTokenConnect)
	r.Post("/prelogin", srv.handlePrelogin)
	r.Method(http.MethodGet, "/metrics", promexport.NewExporter(engine).Handler())

	log.Printf("authd listening on %s", listenAddr)
	if err := http.ListenAndServe(listenAddr, r); err != nil {
		log.Fatal(err)
	}
}

type server struct {
	engine *registroauth.Engine
}

type formLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
	CSRF     string `json:"csrf"`
}

func (s *server) handleForm(w http.ResponseWriter, r *http.Request) {
	var in formLogin
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.authenticate(w, r, &registroauth.Request{
		Username:  in.Username,
		Password:  in.Password,
		OTPCode:   in.OTP,
		CSRFToken: in.CSRF,
	})
}

type cardLogin struct {
	SubjectCN     string `json:"subject_cn"`
	DaysRemaining int    `json:"days_remaining"`
}

func (s *server) handleCard(w http.ResponseWriter, r *http.Request) {
	var in cardLogin
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.authenticate(w, r, &registroauth.Request{
		CertPresent:       true,
		CertSubjectCN:     in.SubjectCN,
		CertDaysRemaining: in.DaysRemaining,
	})
}

type tokenLogin struct {
	Token string `json:"token"`
	CSRF  string `json:"csrf"`
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in tokenLogin
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.authenticate(w, r, &registroauth.Request{
		ReaderToken: in.Token,
		CSRFToken:   in.CSRF,
	})
}

func (s *server) handleSpid(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, &registroauth.Request{
		SpidResponseID: chi.URLParam(r, "responseID"),
	})
}

type gsuiteLogin struct {
	Email string `json:"email"`
}

func (s *server) handleGSuite(w http.ResponseWriter, r *http.Request) {
	var in gsuiteLogin
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.authenticate(w, r, &registroauth.Request{VerifiedEmail: in.Email})
}

type mimspidLogin struct {
	Token string `json:"token"`
}

func (s *server) handleMimSpid(w http.ResponseWriter, r *http.Request) {
	var in mimspidLogin
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.authenticate(w, r, &registroauth.Request{GatewayToken: in.Token})
}

func (s *server) handleTokenConnect(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, &registroauth.Request{
		HandoffSegment: chi.URLParam(r, "segment"),
	})
}

type preloginRequest struct {
	AccountID string `json:"account_id"`
}

type preloginResponse struct {
	Token string `json:"token"`
}

func (s *server) handlePrelogin(w http.ResponseWriter, r *http.Request) {
	var in preloginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ctx := registroauth.WithClientIP(r.Context(), clientIP(r))
	token, err := s.engine.IssuePreloginToken(ctx, in.AccountID)
	if err != nil {
		writeError(w, statusFor(err), registroauth.Reason(err))
		return
	}
	writeJSON(w, http.StatusOK, preloginResponse{Token: token})
}

type loginResponse struct {
	AccountID      string                         `json:"account_id"`
	Username       string                         `json:"username"`
	Role           string                         `json:"role"`
	Transport      string                         `json:"transport"`
	LinkedProfiles map[registroauth.Role][]string `json:"linked_profiles,omitempty"`
	SpidLogout     string                         `json:"spid_logout,omitempty"`
}

func (s *server) authenticate(w http.ResponseWriter, r *http.Request, req *registroauth.Request) {
	ctx := registroauth.WithClientIP(r.Context(), clientIP(r))
	ctx = registroauth.WithUserAgent(ctx, r.UserAgent())

	sessionID, fresh, err := s.sessionID(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, registroauth.ReasonServerError)
		return
	}
	sess := s.engine.Sessions().Context(ctx, sessionID)

	result, err := s.engine.Authenticate(ctx, req, sess)
	if err != nil {
		writeError(w, statusFor(err), registroauth.Reason(err))
		return
	}

	if fresh {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccountID:      result.Account.ID,
		Username:       result.Account.Username,
		Role:           string(result.Account.Role),
		Transport:      string(result.Transport),
		LinkedProfiles: result.LinkedProfiles,
		SpidLogout:     result.SpidLogoutURL,
	})
}

func (s *server) sessionID(r *http.Request) (string, bool, error) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value, false, nil
	}
	id, err := s.engine.Sessions().NewID()
	return id, true, err
}

func statusFor(err error) int {
	switch registroauth.Reason(err) {
	case "blocked_login", "blocked_time", "blocked_ip", "invalid_user_type_idprovider":
		return http.StatusForbidden
	case registroauth.ReasonServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
