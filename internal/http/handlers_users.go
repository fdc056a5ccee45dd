package http

import (
	"errors"
	"net/http"
	"strconv"

	"secovi/internal/core"
	"secovi/internal/log"
)

type loginData struct {
	Error string
	Login string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.users.Current(); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", loginData{Error: "Requisição inválida."})
		return
	}
	login := sanitizeInput(r.PostForm.Get("login"))
	password := r.PostForm.Get("password")

	u, err := s.users.Login(r.Context(), login, password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			s.render(w, r, http.StatusUnauthorized, "login.html", loginData{Error: "Usuário ou senha inválidos.", Login: login})
			return
		}
		s.structured.LogError(r.Context(), "Login failed", err, log.ComponentUsers, log.OpLogin, nil)
		s.render(w, r, http.StatusInternalServerError, "login.html", loginData{Error: "Não foi possível entrar.", Login: login})
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentUsers).InfoContext(r.Context(), "Operator signed in",
		log.FieldOperation, log.OpLogin, log.FieldLogin, u.Login)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Logout(r.Context()); err != nil {
		s.structured.LogError(r.Context(), "Logout failed", err, log.ComponentUsers, log.OpLogout, nil)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type usersData struct {
	page
	Users []core.User
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	sel := ParseSelection(r.URL.Query(), s.defaultYear)
	s.render(w, r, http.StatusOK, "users.html", usersData{
		page:  s.newPage(r, "Usuários", "users", sel),
		Users: s.users.List(),
	})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectFlash(w, r, "/users", NotificationError, "Requisição inválida.")
		return
	}
	u, err := s.users.AddUser(r.Context(),
		sanitizeInput(r.PostForm.Get("name")),
		sanitizeInput(r.PostForm.Get("login")),
		r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, core.ErrMissingUserFields) {
			redirectFlash(w, r, "/users", NotificationError, "Preencha nome, login e senha.")
			return
		}
		s.structured.LogError(r.Context(), "Add user failed", err, log.ComponentUsers, log.OpAddUser, nil)
		redirectFlash(w, r, "/users", NotificationError, "Não foi possível adicionar o usuário.")
		return
	}
	redirectFlash(w, r, "/users", NotificationSuccess, "Usuário "+u.Login+" adicionado.")
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil || !confirmed(r) {
		redirectFlash(w, r, "/users", NotificationWarning, "Confirme a remoção do usuário.")
		return
	}

	switch err := s.users.RemoveUser(r.Context(), id); {
	case err == nil:
		redirectFlash(w, r, "/users", NotificationSuccess, "Usuário removido.")
	case errors.Is(err, core.ErrLastUser):
		redirectFlash(w, r, "/users", NotificationError, "Não é possível remover o último usuário.")
	case errors.Is(err, core.ErrSelfDelete):
		redirectFlash(w, r, "/users", NotificationError, "Você não pode remover o próprio usuário.")
	case errors.Is(err, core.ErrUserNotFound):
		redirectFlash(w, r, "/users", NotificationError, "Usuário não encontrado.")
	default:
		s.structured.LogError(r.Context(), "Remove user failed", err, log.ComponentUsers, log.OpRemoveUser, nil)
		redirectFlash(w, r, "/users", NotificationError, "Não foi possível remover o usuário.")
	}
}
