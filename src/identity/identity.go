// Package identity tracks who is signed in. Authentication itself belongs to
// an external Provider; the store never depends on this package.
package identity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// User is the signed-in principal as reported by the provider.
type User struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`
	AuthProvider string `json:"authProvider"`
}

// Provider is an external authentication service. Watch emits the current
// user (nil when signed out) once and then on every change, until ctx ends.
type Provider interface {
	Watch(ctx context.Context) <-chan *User
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)
	SignUpWithPassword(ctx context.Context, email, password string) (*User, error)
	SignInWithProvider(ctx context.Context, provider string) (*User, error)
	SignOut(ctx context.Context) error
}

// Listener is told about sign-in state transitions. u is nil on sign-out.
type Listener func(u *User)

// Session mirrors the provider's auth state for the rest of the process.
type Session struct {
	provider Provider
	logger   *zap.SugaredLogger

	mu        sync.RWMutex
	current   *User
	listeners []Listener
	done      chan struct{}
	start     sync.Once
}

func NewSession(provider Provider, logger *zap.SugaredLogger) *Session {
	return &Session{provider: provider, logger: logger, done: make(chan struct{})}
}

// Start follows the provider until ctx ends. Done is closed afterwards.
// Only the first call has any effect.
func (s *Session) Start(ctx context.Context) {
	s.start.Do(func() {
		updates := s.provider.Watch(ctx)
		go s.follow(ctx, updates)
	})
}

func (s *Session) follow(ctx context.Context, updates <-chan *User) {
	defer close(s.done)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.set(u)
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once the session stops following the provider.
func (s *Session) Done() <-chan struct{} { return s.done }

// OnChange registers fn for sign-in state transitions.
func (s *Session) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns a copy of the signed-in user, or nil.
func (s *Session) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// set records u and notifies listeners when the state actually changed:
// signed out to in, in to out, or one user replaced by another.
func (s *Session) set(u *User) {
	s.mu.Lock()
	prev := s.current
	changed := (prev == nil) != (u == nil) || (prev != nil && u != nil && prev.UserID != u.UserID)
	if u != nil {
		cp := *u
		s.current = &cp
	} else {
		s.current = nil
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	if u != nil {
		s.logger.Infow("User signed in", "userId", u.UserID, "provider", u.AuthProvider)
	} else {
		s.logger.Infow("User signed out", "userId", prev.UserID)
	}
	for _, fn := range listeners {
		var cp *User
		if u != nil {
			v := *u
			cp = &v
		}
		fn(cp)
	}
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*User, error) {
	u, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	return u, nil
}

func (s *Session) SignUp(ctx context.Context, email, password string) (*User, error) {
	u, err := s.provider.SignUpWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	return u, nil
}

func (s *Session) SignInWithProvider(ctx context.Context, provider string) (*User, error) {
	u, err := s.provider.SignInWithProvider(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in with %s: %w", provider, err)
	}
	return u, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}
