package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error             string
	Username          string
	AllowRegistration bool
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to expenses
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.store.ValidateSession(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/expenses", http.StatusFound)
			return
		}
	}
	h.render(w, r, http.StatusOK, "login.html", LoginViewModel{AllowRegistration: h.opts.AllowRegistration})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	vm := LoginViewModel{AllowRegistration: h.opts.AllowRegistration}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "login.html", vm)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	vm.Username = username

	if username == "" || password == "" {
		vm.Error = "Username and password are required"
		h.render(w, r, http.StatusBadRequest, "login.html", vm)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger(r).Error().Err(err).Msg("Failed to look up user")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, http.StatusInternalServerError, "login.html", vm)
		return
	}
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.logger(r).Info().Str("username", username).Msg("Failed login attempt")
		vm.Error = "Invalid username or password"
		h.render(w, r, http.StatusUnauthorized, "login.html", vm)
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.logger(r).Error().Err(err).Msg("Failed to generate session token")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, http.StatusInternalServerError, "login.html", vm)
		return
	}

	if err := h.store.CreateSession(r.Context(), token, user.ID, time.Now().Add(SessionDuration)); err != nil {
		h.logger(r).Error().Err(err).Msg("Failed to create session")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, http.StatusInternalServerError, "login.html", vm)
		return
	}

	h.setSessionCookie(w, token)
	h.logger(r).Info().Str("user_id", user.ID.String()).Msg("User logged in")
	h.redirect(w, r, "/expenses")
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Username string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if !h.opts.AllowRegistration {
		h.NotFound(w, r)
		return
	}
	h.render(w, r, http.StatusOK, "register.html", RegisterViewModel{})
}

// Register creates an account and sends the user to the login page.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if !h.opts.AllowRegistration {
		h.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.setFlash(w, FlashError, "Invalid form submission")
		h.redirect(w, r, "/register")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if password != r.FormValue("confirm") {
		h.setFlash(w, FlashError, "Passwords do not match")
		h.redirect(w, r, "/register")
		return
	}
	if err := models.ValidateCredentials(username, password); err != nil {
		h.setFlash(w, FlashError, capitalize(err.Error()))
		h.redirect(w, r, "/register")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		h.serverError(w, r, "Failed to hash password", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), username, hash)
	if errors.Is(err, storage.ErrUserExists) {
		h.setFlash(w, FlashError, "Username already exists")
		h.redirect(w, r, "/register")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to create user", err)
		return
	}

	h.logger(r).Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User registered")
	h.setFlash(w, FlashSuccess, "Account created. Please sign in.")
	h.redirect(w, r, "/login")
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.logger(r).Error().Err(err).Msg("Failed to delete session")
		}
	}
	h.clearSessionCookie(w)
	h.redirect(w, r, "/login")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
