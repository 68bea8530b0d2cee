package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"kakeibo/internal/auth"
	"kakeibo/internal/logging"
	"kakeibo/internal/metrics"
	"kakeibo/internal/storage"

	"github.com/dustin/go-humanize"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// SessionContextKey is the context key for the authenticated session.
	SessionContextKey contextKey = "session"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

var pages = []string{
	"login.html",
	"register.html",
	"add_record.html",
	"records.html",
	"monthly_summary.html",
	"category_summary.html",
	"balance_summary.html",
}

var funcs = template.FuncMap{
	"yen": formatYen,
	"date": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"percent": func(p float64) string {
		return fmt.Sprintf("%.1f%%", p)
	},
}

func formatYen(amount int64) string {
	if amount < 0 {
		return "-¥" + humanize.Comma(-amount)
	}
	return "¥" + humanize.Comma(amount)
}

// Options configures Handlers.
type Options struct {
	Templates       fs.FS
	SecureCookie    bool
	CommuteCategory string
	Metrics         *metrics.Metrics
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db              *storage.DB
	sessions        *auth.SessionCodec
	metrics         *metrics.Metrics
	templates       map[string]*template.Template
	secureCookie    bool
	commuteCategory string
}

// NewHandlers parses every page template against the base layout and
// creates a new Handlers instance.
func NewHandlers(db *storage.DB, sessions *auth.SessionCodec, opts Options) (*Handlers, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(opts.Templates, "base.html", page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		templates[page] = tmpl
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.CommuteCategory == "" {
		opts.CommuteCategory = "commute"
	}

	return &Handlers{
		db:              db,
		sessions:        sessions,
		metrics:         opts.Metrics,
		templates:       templates,
		secureCookie:    opts.SecureCookie,
		commuteCategory: opts.CommuteCategory,
	}, nil
}

// SessionFromContext retrieves the authenticated session from request context.
func SessionFromContext(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(auth.Session)
	return s, ok
}

func (h *Handlers) currentSession(r *http.Request) (auth.Session, bool) {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s, true
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.Session{}, false
	}
	s, err := h.sessions.Parse(cookie.Value)
	if err != nil {
		return auth.Session{}, false
	}
	return s, true
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, a freshly signed cookie replaces it.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// protected pages must not be served from the browser cache after logout
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		session, err := h.sessions.Parse(cookie.Value)
		if err != nil {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		if h.sessions.NeedsRenewal(session) {
			renewed, token, err := h.sessions.Issue(session.UserID, session.Username)
			if err == nil {
				h.setSessionCookie(w, token)
				session = renewed
			} else {
				logging.FromContext(r.Context()).WithError(err).Warn("Failed to renew session")
			}
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
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
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Page is the data every template receives.
type Page struct {
	Title   string
	Path    string
	Session *auth.Session
	View    any
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName, title string, view any) {
	tmpl, ok := h.templates[viewName]
	if !ok {
		h.serverError(w, r, fmt.Errorf("unknown template %s", viewName))
		return
	}

	page := Page{Title: title, Path: r.URL.Path, View: view}
	if s, ok := h.currentSession(r); ok {
		page.Session = &s
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", page); err != nil {
		h.serverError(w, r, fmt.Errorf("execute template %s: %w", viewName, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Failed to write response")
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// Health reports whether the database is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Health check failed")
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}
