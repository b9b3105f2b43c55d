package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"expense-ledger/internal/logger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

// Options toggles optional behaviour of the handlers.
type Options struct {
	SecureCookie      bool
	AllowRegistration bool
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store     storage.Store
	templates fs.FS
	log       zerolog.Logger
	opts      Options
	// now supplies the default expense date.
	now func() time.Time
}

// NewHandlers creates a new Handlers instance. templates must contain
// base.html and the page templates at its root.
func NewHandlers(store storage.Store, templates fs.FS, log zerolog.Logger, opts Options) *Handlers {
	return &Handlers{
		store:     store,
		templates: templates,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// UserFromContext retrieves the authenticated user from a request context.
func UserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// logger returns the request-scoped logger installed by the Logger
// middleware, falling back to the handler's own.
func (h *Handlers) logger(r *http.Request) *zerolog.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return &l
	}
	return &h.log
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirect(w, r, "/login")
			return
		}

		sessionInfo, err := h.store.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				h.logger(r).Error().Err(err).Msg("Failed to validate session")
			}
			h.clearSessionCookie(w)
			h.redirect(w, r, "/login")
			return
		}

		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < SessionDuration/2 {
			if err := h.store.RenewSession(r.Context(), cookie.Value, now.Add(SessionDuration)); err != nil {
				// Keep serving on the current session.
				h.logger(r).Warn().Err(err).Msg("Failed to renew session")
			} else {
				h.setSessionCookie(w, cookie.Value)
			}
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirect sends the browser to path. HTMX requests get an HX-Location
// header so the swap lands in #content instead of replacing the page.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Location", fmt.Sprintf(`{"path":%q, "target":"#content"}`, path))
		w.WriteHeader(http.StatusOK)
		return
	}
	status := http.StatusFound
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, path, status)
}

// pageData is what every template receives. Page holds the view model.
type pageData struct {
	User  *models.User
	Flash *Flash
	Page  any
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"percent": func(f float64) string {
		return fmt.Sprintf("%.1f", f)
	},
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(h.templates, "base.html", viewName)
	if err != nil {
		h.logger(r).Error().Err(err).Str("view", viewName).Msg("Template error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	page := pageData{
		User:  UserFromContext(r.Context()),
		Flash: h.popFlash(w, r),
		Page:  data,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, target, page); err != nil {
		h.logger(r).Error().Err(err).Str("view", viewName).Msg("Template execution error")
	}
}

// ErrorViewModel is the data passed to the error page.
type ErrorViewModel struct {
	Status  int
	Title   string
	Message string
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "error.html", ErrorViewModel{
		Status:  status,
		Title:   http.StatusText(status),
		Message: message,
	})
}

// serverError logs err and answers with a generic 500 page.
func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger(r).Error().Err(err).Msg(msg)
	h.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// Home redirects to the expense list.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// NotFound renders the 404 page for unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "The page you requested does not exist.")
}

// Healthz reports whether the store answers a ping.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.store.Ping(ctx); err != nil {
		h.logger(r).Error().Err(err).Msg("Health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "unavailable")
		return
	}
	fmt.Fprintln(w, "ok")
}
