package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the dialogue state of one user.
type Session struct {
	Intent              workflow.Kind  `json:"intent,omitempty"`
	Fields              map[string]any `json:"fields"`
	PendingConfirmation bool           `json:"pending_confirmation"`
}

func NewSession() *Session {
	return &Session{Fields: map[string]any{}}
}

func (s *Session) Phase() types.Phase {
	if s.PendingConfirmation {
		return types.PhaseConfirming
	}
	return types.PhaseCollecting
}

// Reset discards everything collected so far and starts kind.
func (s *Session) Reset(kind workflow.Kind) {
	s.Intent = kind
	s.Fields = map[string]any{}
	s.PendingConfirmation = false
}

func (s *Session) Clone() *Session {
	out := *s
	out.Fields = maps.Clone(s.Fields)
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	return &out
}

// StateReadWriter owns the sessions of all users. Sessions are exchanged by
// copy: mutating a returned session has no effect until Put.
type StateReadWriter interface {
	GetOrCreate(ctx context.Context, user string) (*Session, error)
	Put(ctx context.Context, user string, session *Session) error
	// Delete returns ErrSessionNotFound when user has no session.
	Delete(ctx context.Context, user string) error
	// Lock serializes turns of the same user. The returned func releases it.
	Lock(ctx context.Context, user string) (func(), error)
}

const sessionNamespace = "hrflow:session"

type SessionStore struct {
	store Store[*Session]
	locks *keyedMutex
}

func NewSessionStore(core Cache[*Session]) *SessionStore {
	return &SessionStore{
		store: NewStore(core, sessionNamespace),
		locks: newKeyedMutex(),
	}
}

func NewMemorySessionStore() *SessionStore {
	return NewSessionStore(NewMemoryCache[*Session]())
}

func (s *SessionStore) GetOrCreate(ctx context.Context, user string) (*Session, error) {
	session, ok, err := s.store.Get(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok || session == nil {
		return NewSession(), nil
	}
	return session.Clone(), nil
}

func (s *SessionStore) Put(ctx context.Context, user string, session *Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	if err := s.store.Set(ctx, user, session.Clone()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, user string) error {
	ok, err := s.store.Exists(ctx, user)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return s.store.Del(ctx, user)
}

// Exists reports whether user has a stored session.
func (s *SessionStore) Exists(ctx context.Context, user string) (bool, error) {
	return s.store.Exists(ctx, user)
}

func (s *SessionStore) Lock(ctx context.Context, user string) (func(), error) {
	return s.locks.lock(ctx, user)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refLock{}}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// userKeyContext routes adk agent runs to a user session.
type userKeyContext struct{}

func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKeyContext{}, user)
}

func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKeyContext{}).(string)
	return user, ok && user != ""
}
