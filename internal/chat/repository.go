package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions and their transcripts.
type Repository interface {
	CreateSession(ctx context.Context) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListMessages returns the full transcript in chronological order.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// AppendMessage inserts a message and stamps the session's updated_at in one step.
	AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error)
	// EnsureGreeting appends an assistant greeting only when the transcript is empty.
	EnsureGreeting(ctx context.Context, sessionID, greeting string) (*Message, bool, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error)
	// Claim hands the session to a human admin. Claiming twice is a no-op.
	Claim(ctx context.Context, id string) (*Session, error)
	ListActive(ctx context.Context, since time.Time, limit int) ([]Session, error)
	ListBookedCalls(ctx context.Context, limit int) ([]Session, error)
	// ListSessions returns sessions oldest first.
	ListSessions(ctx context.Context, limit int) ([]Session, error)
}

type memorySession struct {
	session  Session
	messages []Message
}

// InMemoryRepository keeps sessions in process memory. It backs local runs
// without DATABASE_URL and most tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]*memorySession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source.
func (r *InMemoryRepository) WithClock(now func() time.Time) *InMemoryRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *InMemoryRepository) CreateSession(ctx context.Context) (*Session, error) {
	now := r.now()
	s := Session{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}

	r.mu.Lock()
	r.sessions[s.ID] = &memorySession{session: s}
	r.mu.Unlock()

	return &s, nil
}

func (r *InMemoryRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := entry.session
	return &s, nil
}

func (r *InMemoryRepository) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]Message(nil), entry.messages...), nil
}

func (r *InMemoryRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	all, err := r.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *InMemoryRepository) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(sessionID, role, content)
}

func (r *InMemoryRepository) appendLocked(sessionID string, role Role, content string) (*Message, error) {
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := r.now()
	if n := len(entry.messages); n > 0 && now.Before(entry.messages[n-1].CreatedAt) {
		now = entry.messages[n-1].CreatedAt
	}
	msg := Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	entry.messages = append(entry.messages, msg)
	entry.session.UpdatedAt = now
	return &msg, nil
}

func (r *InMemoryRepository) EnsureGreeting(ctx context.Context, sessionID, greeting string) (*Message, bool, error) {
	greeting, err := normalizeContent(greeting)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	if len(entry.messages) > 0 {
		return nil, false, nil
	}
	msg, err := r.appendLocked(sessionID, RoleAssistant, greeting)
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func (r *InMemoryRepository) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := update.Check(entry.session); err != nil {
		return nil, err
	}
	next := update.ApplyTo(entry.session)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	if next.UpdatedAt.Before(entry.session.UpdatedAt) {
		next.UpdatedAt = entry.session.UpdatedAt
	}
	entry.session = next
	s := next
	return &s, nil
}

func (r *InMemoryRepository) Claim(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.session.IsAdmin = true
	entry.session.EscalationPending = false
	entry.session.UpdatedAt = r.now()
	s := entry.session
	return &s, nil
}

func (r *InMemoryRepository) ListActive(ctx context.Context, since time.Time, limit int) ([]Session, error) {
	return r.list(limit, byUpdatedDesc, func(s Session) bool {
		return !s.UpdatedAt.Before(since)
	}), nil
}

func (r *InMemoryRepository) ListBookedCalls(ctx context.Context, limit int) ([]Session, error) {
	return r.list(limit, byUpdatedDesc, func(s Session) bool {
		return s.BookedCall != nil && s.PhoneNumber != nil
	}), nil
}

func (r *InMemoryRepository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	return r.list(limit, byCreatedAsc, func(Session) bool { return true }), nil
}

func byUpdatedDesc(a, b Session) bool { return a.UpdatedAt.After(b.UpdatedAt) }
func byCreatedAsc(a, b Session) bool { return a.CreatedAt.Before(b.CreatedAt) }

func (r *InMemoryRepository) list(limit int, less func(a, b Session) bool, keep func(Session) bool) []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, entry := range r.sessions {
		if keep(entry.session) {
			out = append(out, entry.session)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
