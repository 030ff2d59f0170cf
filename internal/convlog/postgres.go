package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation logs in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			position BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			space_id TEXT NOT NULL,
			role TEXT NOT NULL,
			kind TEXT NOT NULL,
			event TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			attachments JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_space
			ON conversation_turns (participant_id, space_id, position);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, t Turn) (int64, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	attachments, err := json.Marshal(t.Attachments)
	if err != nil {
		return 0, fmt.Errorf("marshal attachments: %w", err)
	}

	var position int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO conversation_turns (id, participant_id, space_id, role, kind, event, content, attachments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING position`,
		t.ID,
		t.Participant,
		t.Space,
		t.Role,
		string(t.Kind),
		t.Event,
		t.Text,
		attachments,
		t.CreatedAt,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	return position, nil
}

func (s *PostgresStore) LastTurns(ctx context.Context, participant, space string, k int) ([]Turn, error) {
	if k <= 0 {
		k = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, participant_id, space_id, role, kind, event, content, attachments, created_at
		 FROM conversation_turns
		 WHERE participant_id=$1 AND space_id=$2
		 ORDER BY position DESC LIMIT $3`,
		participant,
		space,
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("query last turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, k)
	for rows.Next() {
		var (
			t    Turn
			kind string
			raw  []byte
		)
		if err := rows.Scan(&t.ID, &t.Participant, &t.Space, &t.Role, &kind, &t.Event, &t.Text, &raw, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Kind = ContentKind(kind)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &t.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
