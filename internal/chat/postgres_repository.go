package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("havana.internal.chat")

// PgxPool is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores sessions and messages in Postgres.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("chat: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `id::text, created_at, updated_at, is_admin, escalation_pending, phone_number, booked_call, COALESCE(call_status, '')`

const messageColumns = `id::text, session_id::text, role, content, created_at`

// parseID maps malformed ids onto ErrSessionNotFound instead of a database error.
func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}
	return parsed, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s      Session
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.IsAdmin,
		&s.EscalationPending,
		&s.PhoneNumber,
		&s.BookedCall,
		&status,
	); err != nil {
		return nil, err
	}
	s.CallStatus = CallStatus(status)
	return &s, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m    Message
		role string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Role = Role(role)
	return m, nil
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (r *PostgresRepository) CreateSession(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.create_session")
	defer span.End()

	id := uuid.New()
	query := `
		INSERT INTO chat_sessions (id, created_at, updated_at, is_admin, escalation_pending)
		VALUES ($1, now(), now(), false, false)
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: insert session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.get_session")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", id))

	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, sid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		recordErr(span, err)
		return nil, fmt.Errorf("chat: select session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	sid, err := parseID(sessionID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	msgs, err := r.queryMessages(ctx, query, sid)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		if err := r.ensureExists(ctx, sid); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (r *PostgresRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	sid, err := parseID(sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return r.ListMessages(ctx, sessionID)
	}
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	msgs, err := r.queryMessages(ctx, query, sid, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *PostgresRepository) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chat: select messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate messages: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ensureExists(ctx context.Context, sid uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sid).Scan(&exists); err != nil {
		return fmt.Errorf("chat: check session: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage touches the session and inserts the row inside one
// transaction, reusing the touched timestamp as the message's created_at.
// The touch reads the wall clock after the row lock is taken and never moves
// updated_at backwards, so messages order by commit.
func (r *PostgresRepository) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	ctx, span := tracer.Start(ctx, "chat.append_message")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", sessionID), attribute.String("chat.role", string(role)))

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	sid, err := parseID(sessionID)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msg, err := appendInTx(ctx, tx, sid, role, content)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			recordErr(span, err)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: commit append: %w", err)
	}
	return msg, nil
}

func appendInTx(ctx context.Context, tx pgx.Tx, sid uuid.UUID, role Role, content string) (*Message, error) {
	var touched time.Time
	err := tx.QueryRow(ctx, `
		UPDATE chat_sessions SET updated_at = GREATEST(updated_at, clock_timestamp())
		WHERE id = $1
		RETURNING updated_at
	`, sid).Scan(&touched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("chat: touch session: %w", err)
	}

	id := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, sid, string(role), content, touched); err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}

	return &Message{
		ID:        id.String(),
		SessionID: sid.String(),
		Role:      role,
		Content:   content,
		CreatedAt: touched,
	}, nil
}

// EnsureGreeting locks the session row so concurrent first opens append a single greeting.
func (r *PostgresRepository) EnsureGreeting(ctx context.Context, sessionID, greeting string) (*Message, bool, error) {
	greeting, err := normalizeContent(greeting)
	if err != nil {
		return nil, false, err
	}
	sid, err := parseID(sessionID)
	if err != nil {
		return nil, false, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("chat: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var hasMessages bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_messages WHERE session_id = s.id)
		FROM chat_sessions s
		WHERE s.id = $1
		FOR UPDATE
	`, sid).Scan(&hasMessages)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrSessionNotFound
		}
		return nil, false, fmt.Errorf("chat: lock session: %w", err)
	}
	if hasMessages {
		return nil, false, nil
	}

	msg, err := appendInTx(ctx, tx, sid, RoleAssistant, greeting)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("chat: commit greeting: %w", err)
	}
	return msg, true, nil
}

// UpdateSession applies a partial mutation under a row lock, validating the
// booking invariant and the update's ownership check before anything is written.
func (r *PostgresRepository) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.update_session")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", id))

	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1 FOR UPDATE`, sid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		recordErr(span, err)
		return nil, fmt.Errorf("chat: lock session: %w", err)
	}
	if err := update.Check(*current); err != nil {
		return nil, err
	}

	next := update.ApplyTo(*current)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	updated, err := scanSession(tx.QueryRow(ctx, `
		UPDATE chat_sessions
		SET phone_number = $2,
			booked_call = $3,
			call_status = NULLIF($4, ''),
			escalation_pending = $5,
			updated_at = GREATEST(updated_at, clock_timestamp())
		WHERE id = $1
		RETURNING `+sessionColumns,
		sid, next.PhoneNumber, next.BookedCall, string(next.CallStatus), next.EscalationPending,
	))
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: update session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("chat: commit update: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) Claim(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "chat.claim")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", id))

	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(r.pool.QueryRow(ctx, `
		UPDATE chat_sessions
		SET is_admin = true, escalation_pending = false, updated_at = GREATEST(updated_at, clock_timestamp())
		WHERE id = $1
		RETURNING `+sessionColumns, sid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		recordErr(span, err)
		return nil, fmt.Errorf("chat: claim session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, since time.Time, limit int) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE updated_at >= $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, since, limit)
}

func (r *PostgresRepository) ListBookedCalls(ctx context.Context, limit int) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE booked_call IS NOT NULL AND phone_number IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
}

func (r *PostgresRepository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chat: select sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan session: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate sessions: %w", err)
	}
	return out, nil
}
