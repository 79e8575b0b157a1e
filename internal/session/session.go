// Package session manages the simulated signed-in user of a browsing
// session. No credentials are checked or stored.
package session

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/model"
	"github.com/vyrodovalexey/flexishop/internal/store"
)

// MinPasswordLength is the shortest password sign-up accepts.
const MinPasswordLength = 6

// Validation messages shown to the user.
const (
	MsgMissingFields    = "Please fill in all fields"
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 6 characters"
)

// GuestName is shown in the greeting when nobody is signed in.
const GuestName = "Sign in"

// ValidationError reports a rejected form. No state is changed when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SignUpForm holds the sign-up fields.
type SignUpForm struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Manager reads and writes the user slot of each session.
type Manager struct {
	kv     store.Store
	logger *zap.Logger
}

// NewManager creates a Manager over kv.
func NewManager(kv store.Store, logger *zap.Logger) *Manager {
	return &Manager{
		kv:     kv,
		logger: logger,
	}
}

func (m *Manager) slot(sessionID string) *store.Slot {
	return store.NewSlot(m.kv, sessionID, store.UserSlot)
}

// Current returns the signed-in user, or nil when the slot is absent,
// unreadable or corrupt.
func (m *Manager) Current(ctx context.Context, sessionID string) *model.UserSession {
	blob, err := m.slot(sessionID).Read(ctx)
	if err != nil {
		m.logger.Warn("failed to read user session", zap.Error(err))
		return nil
	}
	if len(blob) == 0 {
		return nil
	}

	var user model.UserSession
	if err := json.Unmarshal(blob, &user); err != nil {
		m.logger.Warn("discarding undecodable user session", zap.Error(err))
		return nil
	}

	return &user
}

// SignIn records a user named after the local part of email.
func (m *Manager) SignIn(ctx context.Context, sessionID, email, password string) (*model.UserSession, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &ValidationError{Message: MsgMissingFields}
	}

	name, _, _ := strings.Cut(email, "@")
	user := &model.UserSession{
		Name:     name,
		Email:    email,
		LoggedIn: true,
	}

	m.save(ctx, sessionID, user)

	return user, nil
}

// SignUp validates the form and records the new user.
func (m *Manager) SignUp(ctx context.Context, sessionID string, form SignUpForm) (*model.UserSession, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	user := &model.UserSession{
		Name:     strings.TrimSpace(form.Name),
		Email:    strings.TrimSpace(form.Email),
		LoggedIn: true,
	}

	m.save(ctx, sessionID, user)

	return user, nil
}

// SignOut forgets the user.
func (m *Manager) SignOut(ctx context.Context, sessionID string) {
	if err := m.slot(sessionID).Clear(ctx); err != nil {
		m.logger.Warn("failed to clear user session", zap.Error(err))
	}
}

// save writes the user slot. Persistence failures are absorbed.
func (m *Manager) save(ctx context.Context, sessionID string, user *model.UserSession) {
	blob, err := json.Marshal(user)
	if err != nil {
		m.logger.Error("failed to encode user session", zap.Error(err))
		return
	}

	if err := m.slot(sessionID).Write(ctx, blob); err != nil {
		m.logger.Warn("failed to persist user session", zap.Error(err))
	}
}

// Validate checks the sign-up fields in the order the user sees them.
func (f SignUpForm) Validate() error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Email) == "" ||
		f.Password == "" || f.PasswordConfirm == "" {
		return &ValidationError{Message: MsgMissingFields}
	}

	if f.Password != f.PasswordConfirm {
		return &ValidationError{Message: MsgPasswordMismatch}
	}

	if len([]rune(f.Password)) < MinPasswordLength {
		return &ValidationError{Message: MsgPasswordTooShort}
	}

	return nil
}

// Greeting returns the header greeting for user.
func Greeting(user *model.UserSession) string {
	if user == nil || user.Name == "" {
		return "Hello, " + GuestName
	}
	return "Hello, " + user.Name
}
