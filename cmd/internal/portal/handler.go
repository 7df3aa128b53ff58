package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/session"
	"docqa/cmd/internal/forms"
	"docqa/cmd/internal/guard"
)

// Sessions is the session controller as seen by the portal.
type Sessions interface {
	guard.StateSource
	Login(ctx context.Context, email, password string) (session.Identity, error)
	Signup(ctx context.Context, in session.SignupInput) (session.Identity, error)
	Logout(ctx context.Context) error
}

// Backend is the set of service calls the portal proxies.
type Backend interface {
	ForgotPassword(ctx context.Context, email string) (apiclient.MessageResponse, error)
	ResetPassword(ctx context.Context, in apiclient.ResetPasswordRequest) (apiclient.MessageResponse, error)
	Ask(ctx context.Context, query string) (apiclient.AskResponse, error)
	UploadDocument(ctx context.Context, filename string, content io.Reader) (apiclient.DocumentResponse, error)
	AdminDashboard(ctx context.Context) (apiclient.AdminDashboard, error)
}

// Fallback messages shown when the service gives no detail.
const (
	FallbackLogin          = "Invalid email or password"
	FallbackSignup         = "Failed to create account"
	FallbackForgotPassword = "Failed to send OTP"
	FallbackResetPassword  = "Failed to reset password"
	FallbackUpload         = "Failed to upload file"
	FallbackAsk            = "Failed to get answer"
	FallbackAdmin          = "Failed to load dashboard data"
)

const (
	msgBadJSON   = "invalid request body"
	msgLogoutErr = "Failed to clear stored credentials"
)

// Config controls request limits.
type Config struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 1 << 20}
}

// Handler serves the portal routes.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions Sessions
	backend  Backend
	forms    *forms.Validator
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if h == nil || log == nil {
			return
		}
		h.log = log
	}
}

// NewHandler constructs a portal Handler.
func NewHandler(cfg Config, sessions Sessions, backend Backend, v *forms.Validator, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil || backend == nil || v == nil {
		return nil, errors.New("portal: sessions, backend and validator are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      slog.Default(),
		cfg:      cfg,
		sessions: sessions,
		backend:  backend,
		forms:    v,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires portal routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/session", h.handleSession)
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/signup", h.handleSignup)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("/reset-password", h.handleResetPassword)

	mux.Handle("/dashboard", guard.Protect(h.sessions, false, http.HandlerFunc(h.handleDashboard)))
	mux.Handle("/ask", guard.Protect(h.sessions, false, http.HandlerFunc(h.handleAsk)))
	mux.Handle("/upload", guard.Protect(h.sessions, false, http.HandlerFunc(h.handleUpload)))
	mux.Handle("/admin", guard.Protect(h.sessions, true, http.HandlerFunc(h.handleAdmin)))
}

// ---- handlers ----

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(h.sessions.Snapshot(r.Context())))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Already signed in: the login page bounces to the dashboard.
		snap := h.sessions.Snapshot(r.Context())
		if !snap.Loading() && snap.Authenticated {
			http.Redirect(w, r, guard.HomePath, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(snap))
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", msgBadJSON)
		return
	}
	in := forms.Login{Email: req.Email, Password: req.Password}
	if err := h.forms.Login(&in); err != nil {
		h.writeFailure(w, r, "portal.login", err, FallbackLogin)
		return
	}

	id, err := h.sessions.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.writeFailure(w, r, "portal.login", err, FallbackLogin)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Identity: id, Redirect: guard.HomePath})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", msgBadJSON)
		return
	}
	in := forms.Signup{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Confirm:  req.ConfirmPassword,
		Role:     req.Role,
	}
	if err := h.forms.Signup(&in); err != nil {
		h.writeFailure(w, r, "portal.signup", err, FallbackSignup)
		return
	}

	id, err := h.sessions.Signup(r.Context(), session.SignupInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Role:     session.Role(in.Role),
	})
	if err != nil {
		h.writeFailure(w, r, "portal.signup", err, FallbackSignup)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Identity: id, Redirect: guard.HomePath})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.log.Error("portal.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "store_error", msgLogoutErr)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out", Redirect: guard.LoginPath})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", msgBadJSON)
		return
	}
	in := forms.ForgotPassword{Email: req.Email}
	if err := h.forms.ForgotPassword(&in); err != nil {
		h.writeFailure(w, r, "portal.forgot_password", err, FallbackForgotPassword)
		return
	}

	res, err := h.backend.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		h.writeFailure(w, r, "portal.forgot_password", err, FallbackForgotPassword)
		return
	}
	msg := res.Message
	if msg == "" {
		msg = "OTP sent to your email"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg, Redirect: "/reset-password"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", msgBadJSON)
		return
	}
	in := forms.ResetPassword{
		Email:       req.Email,
		OTP:         req.OTP,
		NewPassword: req.NewPassword,
		Confirm:     req.ConfirmPassword,
	}
	if err := h.forms.ResetPassword(&in); err != nil {
		h.writeFailure(w, r, "portal.reset_password", err, FallbackResetPassword)
		return
	}

	res, err := h.backend.ResetPassword(r.Context(), apiclient.ResetPasswordRequest{
		Email:       in.Email,
		OTP:         in.OTP,
		NewPassword: in.NewPassword,
	})
	if err != nil {
		h.writeFailure(w, r, "portal.reset_password", err, FallbackResetPassword)
		return
	}
	msg := res.Message
	if msg == "" {
		msg = "Password reset successfully"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg, Redirect: guard.LoginPath})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := h.sessions.Snapshot(r.Context())
	if snap.Identity == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Identity: *snap.Identity, Admin: snap.Admin})
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req askRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", msgBadJSON)
		return
	}
	q, err := h.forms.Ask(req.Query)
	if err != nil {
		h.writeFailure(w, r, "portal.ask", err, FallbackAsk)
		return
	}

	res, err := h.backend.Ask(r.Context(), q)
	if err != nil {
		h.writeFailure(w, r, "portal.ask", err, FallbackAsk)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Multipart framing needs some room beyond the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.forms.MaxUploadBytes()+(1<<20))
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_input",
				fmt.Sprintf("File is too large (max %d MiB)", h.forms.MaxUploadBytes()>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "Please select a file")
		return
	}
	defer func() { _ = file.Close() }()

	up, content, err := h.forms.UploadReader(hdr.Filename, hdr.Size, file)
	if err != nil {
		h.writeFailure(w, r, "portal.upload", err, FallbackUpload)
		return
	}

	doc, err := h.backend.UploadDocument(r.Context(), up.Filename, content)
	if err != nil {
		h.writeFailure(w, r, "portal.upload", err, FallbackUpload)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  fmt.Sprintf("File %q uploaded successfully!", up.Filename),
		Document: doc,
	})
}

func (h *Handler) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, err := h.backend.AdminDashboard(r.Context())
	if err != nil {
		h.writeFailure(w, r, "portal.admin", err, FallbackAdmin)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeFailure renders err following the inline message policy. A failed
// refresh is not shown inline: the caller is sent to the login page.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, event string, err error, fallback string) {
	var ve *forms.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "invalid_input", ve.Message)
		return
	}

	if errors.Is(err, apiclient.ErrReauthRequired) {
		h.log.Info(event+".reauth", "err", err)
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}

	msg := apiclient.Message(err, fallback)

	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		h.log.Info(event+".fail", "status", apiErr.Status, "err", err)
		writeError(w, apiErr.Status, "remote_rejected", msg)
	case errors.As(err, &apiErr):
		h.log.Warn(event+".fail", "status", apiErr.Status, "err", err)
		writeError(w, http.StatusBadGateway, "remote_error", msg)
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn(event+".timeout", "err", err)
		writeError(w, http.StatusGatewayTimeout, "remote_timeout", msg)
	case errors.Is(err, session.ErrInvalidLoginResponse):
		h.log.Warn(event+".fail", "err", err)
		writeError(w, http.StatusBadGateway, "remote_error", msg)
	default:
		h.log.Error(event+".fail", "err", err)
		writeError(w, http.StatusBadGateway, "remote_unavailable", msg)
	}
}
