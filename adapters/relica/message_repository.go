package relica

import (
	"context"
	"database/sql"
	"strings"

	"github.com/coregx/relica"

	"github.com/coregx/topichub"
	"github.com/coregx/topichub/model"
)

// queueRow is one per-subscriber queue entry pointing at a stored message.
type queueRow struct {
	ID            int64   `db:"id"`
	PubMsgID      string  `db:"pub_msg_id"`
	SubKey        string  `db:"sub_key"`
	TopicID       int     `db:"topic_id"`
	CreationTime  float64 `db:"creation_time"`
	DeliveryCount int     `db:"delivery_count"`
	IsDelivered   bool    `db:"is_delivered"`
}

// MessageRepository implements topichub.MessageRepository using Relica ORM.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "topichub_"}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

func (r *MessageRepository) queueTableName() string {
	return r.tablePrefix + "queue"
}

// Insert stores one GD message and enqueues it for each sub-key.
func (r *MessageRepository) Insert(ctx context.Context, row *model.GDMessageRow, subKeys []string) error {
	if err := r.db.WithContext(ctx).Model(row).Table(r.tableName()).Insert(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to insert message", err)
	}

	for _, subKey := range subKeys {
		q := queueRow{
			PubMsgID:     row.PubMsgID,
			SubKey:       subKey,
			TopicID:      row.TopicID,
			CreationTime: row.PubTime,
		}
		if err := r.db.WithContext(ctx).Model(&q).Table(r.queueTableName()).Insert(); err != nil {
			return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to enqueue message", err)
		}
	}

	return nil
}

// inPlaceholders returns "?, ?, ..." for n arguments.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// FindBySubKeys returns the pending queue entries of a topic for the given
// sub-keys, each joined with its message, oldest first.
func (r *MessageRepository) FindBySubKeys(ctx context.Context, topicID int, subKeys []string) ([]model.GDMessageRow, error) {
	if len(subKeys) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(subKeys)+2)
	args = append(args, topicID, false)
	for _, subKey := range subKeys {
		args = append(args, subKey)
	}

	var queue []queueRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.queueTableName()).
		Where("topic_id = ? AND is_delivered = ? AND sub_key IN ("+inPlaceholders(len(subKeys))+")", args...).
		OrderBy("creation_time ASC").
		All(&queue)
	if err != nil {
		return nil, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to load queue entries", err)
	}
	if len(queue) == 0 {
		return nil, nil
	}

	msgIDSet := map[string]struct{}{}
	msgArgs := make([]interface{}, 0, len(queue))
	for _, q := range queue {
		if _, ok := msgIDSet[q.PubMsgID]; ok {
			continue
		}
		msgIDSet[q.PubMsgID] = struct{}{}
		msgArgs = append(msgArgs, q.PubMsgID)
	}

	var messages []model.GDMessageRow
	err = r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("pub_msg_id IN ("+inPlaceholders(len(msgArgs))+")", msgArgs...).
		OrderBy("pub_time ASC").
		All(&messages)
	if err != nil {
		return nil, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to load messages", err)
	}

	byMsgID := make(map[string]model.GDMessageRow, len(messages))
	for _, m := range messages {
		byMsgID[m.PubMsgID] = m
	}

	out := make([]model.GDMessageRow, 0, len(queue))
	for _, q := range queue {
		m, ok := byMsgID[q.PubMsgID]
		if !ok {
			continue
		}
		m.EndpMsgQueueID = q.ID
		m.SubKey = q.SubKey
		out = append(out, m)
	}

	return out, nil
}

// DeleteExpired removes messages whose expiration time has passed and returns
// how many were removed. Queue entries go with their messages through the
// foreign key cascade.
func (r *MessageRepository) DeleteExpired(ctx context.Context, now float64) (int64, error) {
	var expired []model.GDMessageRow
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("expiration_time > ? AND expiration_time <= ?", 0, now).
		All(&expired)
	if err != nil {
		return 0, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to find expired messages", err)
	}

	var removed int64
	for i := range expired {
		if err := r.db.WithContext(ctx).Model(&expired[i]).Table(r.tableName()).Delete(); err != nil {
			return removed, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to delete expired message", err)
		}
		removed++
	}

	return removed, nil
}
