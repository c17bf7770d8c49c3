package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
)

const (
	conversationsPairKeyIndex = "conversations_pair_key_uidx"
	conversationsTripIDIndex  = "conversations_trip_id_uidx"
)

// conversationCols matches the field order of scanConversation.
const conversationCols = `c.id, c.kind, COALESCE(c.pair_key, ''), c.trip_id, c.name,
	c.last_message_text, c.last_message_author_id, c.last_message_author_name, c.last_message_at,
	c.created_at, c.updated_at,
	ARRAY(SELECT p.user_id FROM conversation_participants p WHERE p.conversation_id = c.id ORDER BY p.joined_at, p.user_id)`

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	var (
		text, authorID, authorName *string
		lastAt                     *time.Time
	)
	if err := s.Scan(&c.ID, &c.Kind, &c.PairKey, &c.TripID, &c.Name,
		&text, &authorID, &authorName, &lastAt,
		&c.CreatedAt, &c.UpdatedAt, &c.Participants); err != nil {
		return err
	}
	if lastAt != nil {
		c.LastMessage = &model.Summary{SentAt: *lastAt}
		if text != nil {
			c.LastMessage.Text = *text
		}
		if authorID != nil {
			c.LastMessage.AuthorID = *authorID
		}
		if authorName != nil {
			c.LastMessage.AuthorName = *authorName
		}
	}
	return nil
}

func (r *ConversationRepository) getOne(ctx context.Context, op, where string, arg any) (*model.Conversation, error) {
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations c WHERE `+where, arg)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversationRepo.%s: %w", op, err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetByID", time.Now())()
	return r.getOne(ctx, "GetByID", `c.id = $1`, id)
}

// FindPrivate looks a private conversation up by its canonical pair key.
func (r *ConversationRepository) FindPrivate(ctx context.Context, pairKey string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.FindPrivate", time.Now())()
	return r.getOne(ctx, "FindPrivate", `c.kind = 'private' AND c.pair_key = $1`, pairKey)
}

func (r *ConversationRepository) FindGroup(ctx context.Context, tripID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.FindGroup", time.Now())()
	return r.getOne(ctx, "FindGroup", `c.kind = 'group' AND c.trip_id = $1`, tripID)
}

// Create inserts the conversation with its participants in one transaction.
// A concurrent create of the same pair or trip surfaces as ErrConflict.
func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conversation.Create", time.Now())()
	var pairKey *string
	if c.PairKey != "" {
		pairKey = &c.PairKey
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversations (id, kind, pair_key, trip_id, name, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.Kind, pairKey, c.TripID, c.Name, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return err
		}
		for _, uid := range c.Participants {
			if _, err := tx.Exec(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				c.ID, uid, c.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch constraintName(err) {
		case conversationsPairKeyIndex, conversationsTripIDIndex:
			return ErrConflict
		}
		return fmt.Errorf("conversationRepo.Create: %w", err)
	}
	return nil
}

// AddParticipant is idempotent: re-adding an existing participant is a no-op.
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conversation.AddParticipant", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		conversationID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.AddParticipant: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := r.pool.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
			return fmt.Errorf("conversationRepo.AddParticipant touch: %w", err)
		}
	}
	return nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationCols+`
		 FROM conversations c
		 JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
		 ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("conversationRepo.ListForUser scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversationRepo.ListForUser rows: %w", err)
	}
	return out, nil
}

// UpdateSummary is a single-row update that never moves the summary back in time.
func (r *ConversationRepository) UpdateSummary(ctx context.Context, conversationID string, s model.Summary) error {
	defer logger.DeferLogDuration("conversation.UpdateSummary", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations
		 SET last_message_text = $2, last_message_author_id = $3, last_message_author_name = $4,
		     last_message_at = $5, updated_at = now()
		 WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $5)`,
		conversationID, s.Text, s.AuthorID, s.AuthorName, s.SentAt,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.UpdateSummary: %w", err)
	}
	return nil
}
