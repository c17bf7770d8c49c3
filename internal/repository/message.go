package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var messageCols = []string{
	"id", "seq", "conversation_id", "kind", "author_id", "author_name", "body",
	"recipient_id", "trip_id", "sent_at", "is_read",
}

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.Kind, &m.AuthorID, &m.AuthorName, &m.Body,
		&m.RecipientID, &m.TripID, &m.SentAt, &m.IsRead)
}

// Create stores the message and fills in the sequence number assigned by the database.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, kind, author_id, author_name, body, recipient_id, trip_id, sent_at, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING seq`,
		m.ID, m.ConversationID, m.Kind, m.AuthorID, m.AuthorName, m.Body, m.RecipientID, m.TripID, m.SentAt, m.IsRead,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	query, args, err := psql.Select(messageCols...).From("messages").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("messageRepo.GetByID build: %w", err)
	}
	m := &model.Message{}
	if err := scanMessage(r.pool.QueryRow(ctx, query, args...), m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("messageRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByConversation returns the most recent page.Limit messages older than page.Before
// (when set), in ascending seq order. The cursor and the window use the same key.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, page model.Page) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.ListByConversation", time.Now())()
	q := psql.Select(messageCols...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq DESC").
		Limit(uint64(page.Limit))
	if page.Before > 0 {
		q = q.Where(sq.Lt{"seq": page.Before})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListByConversation build: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListByConversation query: %w", err)
	}
	defer rows.Close()

	list := make([]model.Message, 0, page.Limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("messageRepo.ListByConversation scan: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messageRepo.ListByConversation rows: %w", err)
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// MarkRead flags every unread message addressed to recipientID and returns how many changed.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, recipientID string) (int64, error) {
	defer logger.DeferLogDuration("message.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_read = true
		 WHERE conversation_id = $1 AND recipient_id = $2 AND is_read = false`,
		conversationID, recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, recipientID string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("messages").
		Where(sq.Eq{"conversation_id": conversationID, "recipient_id": recipientID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("messageRepo.CountUnread build: %w", err)
	}
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("messageRepo.CountUnread: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("message.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("messageRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
