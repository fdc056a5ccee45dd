package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"secovi/internal/core"
	"secovi/internal/kv"
)

// UserService holds the user directory and the single operator session.
// Changes are written to the store before they take effect in memory.
type UserService struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	users   []core.User
	session *core.User
}

func NewUserService(ctx context.Context, store kv.Store, logger *slog.Logger) (*UserService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &UserService{store: store, logger: logger, now: time.Now}

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	s.users = users

	session, err := s.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	s.session = session
	return s, nil
}

func (s *UserService) loadUsers(ctx context.Context) ([]core.User, error) {
	data, ok, err := s.store.Get(ctx, kv.UsersKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !ok {
		return core.DefaultUsers(), nil
	}
	var users []core.User
	if err := json.Unmarshal(data, &users); err != nil {
		s.logger.ErrorContext(ctx, "Stored user list is unreadable, using default", "error", err)
		return core.DefaultUsers(), nil
	}
	if len(users) == 0 {
		s.logger.WarnContext(ctx, "Stored user list is empty, using default")
		return core.DefaultUsers(), nil
	}
	return users, nil
}

func (s *UserService) loadSession(ctx context.Context) (*core.User, error) {
	data, ok, err := s.store.Get(ctx, kv.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok || string(data) == "null" {
		return nil, nil
	}
	var u core.User
	if err := json.Unmarshal(data, &u); err != nil {
		s.logger.WarnContext(ctx, "Stored session is unreadable, starting signed out", "error", err)
		return nil, nil
	}
	return &u, nil
}

// Login signs in the first user whose login and password match exactly.
func (s *UserService) Login(ctx context.Context, login, password string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.users, func(u core.User) bool {
		return u.Login == login && u.Password == password
	})
	if idx < 0 {
		s.logger.WarnContext(ctx, "Login failed", "login", login)
		return core.User{}, core.ErrInvalidCredentials
	}
	u := s.users[idx]

	data, err := json.Marshal(u)
	if err != nil {
		return core.User{}, fmt.Errorf("encode session: %w", err)
	}
	if err := s.store.Set(ctx, kv.SessionKey, data); err != nil {
		return core.User{}, fmt.Errorf("save session: %w", err)
	}
	s.session = &u
	s.logger.InfoContext(ctx, "User logged in", "login", u.Login, "user_id", u.ID)
	return u, nil
}

// Logout ends the session. Logging out while signed out is a no-op.
func (s *UserService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, kv.SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if s.session != nil {
		s.logger.InfoContext(ctx, "User logged out", "login", s.session.Login)
	}
	s.session = nil
	return nil
}

// Current returns the signed-in user.
func (s *UserService) Current() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return core.User{}, false
	}
	return *s.session, true
}

func (s *UserService) List() []core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// AddUser appends a user whose id is the creation time in milliseconds.
// Duplicate logins are accepted.
func (s *UserService) AddUser(ctx context.Context, name, login, password string) (core.User, error) {
	u := core.User{Name: name, Login: login, Password: password}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.now().UnixMilli()
	next := append(slices.Clone(s.users), u)
	if err := s.saveUsersLocked(ctx, next); err != nil {
		return core.User{}, err
	}
	s.logger.InfoContext(ctx, "User added", "login", u.Login, "user_id", u.ID)
	return u, nil
}

// RemoveUser deletes the user with id. The last user and the signed-in
// user cannot be removed.
func (s *UserService) RemoveUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) <= 1 {
		return core.ErrLastUser
	}
	if s.session != nil && s.session.ID == id {
		return core.ErrSelfDelete
	}
	idx := slices.IndexFunc(s.users, func(u core.User) bool { return u.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %d", core.ErrUserNotFound, id)
	}

	removed := s.users[idx]
	next := slices.Delete(slices.Clone(s.users), idx, idx+1)
	if err := s.saveUsersLocked(ctx, next); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "User removed", "login", removed.Login, "user_id", id)
	return nil
}

func (s *UserService) saveUsersLocked(ctx context.Context, users []core.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := s.store.Set(ctx, kv.UsersKey, data); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	s.users = users
	return nil
}
