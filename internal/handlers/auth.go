package handlers

import (
	"errors"
	"net/http"

	"kakeibo/internal/auth"
	"kakeibo/internal/logging"
	"kakeibo/internal/storage"
)

const (
	// LoginFailedMessage is shown when the email or password is wrong.
	LoginFailedMessage = "メールアドレスまたはパスワードが間違っています"
	// RegisteredMessage is shown after a successful registration.
	RegisteredMessage = "登録が完了しました。ログインしてください"
)

// FormViewModel holds data for the login and register pages.
type FormViewModel struct {
	Error  string
	Notice string
	Email  string
}

// Index sends visitors to the login page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", "ユーザー登録", FormViewModel{})
}

// Register creates a user from the registration form. Fields are stored as
// submitted and emails are not checked for duplicates.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	email := r.FormValue("email")
	password := r.FormValue("password")

	hash, err := auth.HashPassword(password)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), username, email, hash)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).WithField("user_id", user.ID).Info("User registered")
	h.render(w, r, "register.html", "ユーザー登録", FormViewModel{Notice: RegisteredMessage})
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go straight to the balance summary
	if _, ok := h.currentSession(r); ok {
		http.Redirect(w, r, "/balance_summary", http.StatusFound)
		return
	}
	h.render(w, r, "login.html", "ログイン", FormViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	user, err := h.db.GetUserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.serverError(w, r, err)
		return
	}
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		h.render(w, r, "login.html", "ログイン", FormViewModel{Error: LoginFailedMessage, Email: email})
		return
	}

	_, token, err := h.sessions.Issue(user.ID, user.Username)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.setSessionCookie(w, token)
	http.Redirect(w, r, "/balance_summary", http.StatusFound)
}

// Logout clears the session unconditionally.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
