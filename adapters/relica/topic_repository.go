// Package relica provides Relica ORM implementations for topichub repositories.
//
//nolint:dupl // Repository pattern requires similar implementations for different types
package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/topichub"
	"github.com/coregx/topichub/model"
)

// TopicRepository implements topichub.TopicRepository using Relica ORM.
type TopicRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopicRepository creates a new TopicRepository with default table prefix.
func NewTopicRepository(sqlDB *sql.DB, driverName string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "topichub_"}
}

// NewTopicRepositoryWithPrefix creates a new TopicRepository with custom table prefix.
func NewTopicRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopicRepository) tableName() string {
	return r.tablePrefix + "topic"
}

// LoadAll retrieves every topic definition.
func (r *TopicRepository) LoadAll(ctx context.Context) ([]model.TopicConfig, error) {
	var configs []model.TopicConfig
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id ASC").
		All(&configs)
	if err != nil {
		return nil, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to load topics", err)
	}
	return configs, nil
}

// Save creates or updates a topic definition. Topic ids are assigned by the
// administrative layer, so an update that touches no rows falls back to insert.
func (r *TopicRepository) Save(ctx context.Context, config *model.TopicConfig) error {
	var existing model.TopicConfig
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("id = ?", config.ID).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := r.db.WithContext(ctx).Model(config).Table(r.tableName()).Insert(); err != nil {
			return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to insert topic", err)
		}
		return nil
	}
	if err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to look up topic", err)
	}

	if err := r.db.WithContext(ctx).Model(config).Table(r.tableName()).Update(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to update topic", err)
	}
	return nil
}

// Delete removes a topic definition.
func (r *TopicRepository) Delete(ctx context.Context, topicID int) error {
	m := model.TopicConfig{ID: topicID}
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to delete topic", err)
	}
	return nil
}
