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

// EndpointRepository implements topichub.EndpointRepository using Relica ORM.
type EndpointRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewEndpointRepository creates a new EndpointRepository with default table prefix.
func NewEndpointRepository(sqlDB *sql.DB, driverName string) *EndpointRepository {
	return &EndpointRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "topichub_"}
}

// NewEndpointRepositoryWithPrefix creates a new EndpointRepository with custom table prefix.
func NewEndpointRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *EndpointRepository {
	return &EndpointRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *EndpointRepository) tableName() string {
	return r.tablePrefix + "endpoint"
}

// LoadAll retrieves every endpoint definition.
func (r *EndpointRepository) LoadAll(ctx context.Context) ([]model.EndpointConfig, error) {
	var configs []model.EndpointConfig
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id ASC").
		All(&configs)
	if err != nil {
		return nil, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to load endpoints", err)
	}
	return configs, nil
}

// Save creates or updates an endpoint definition. Endpoint ids are assigned
// by the administrative layer, so an unknown id means insert.
func (r *EndpointRepository) Save(ctx context.Context, config *model.EndpointConfig) error {
	var existing model.EndpointConfig
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("id = ?", config.ID).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := r.db.WithContext(ctx).Model(config).Table(r.tableName()).Insert(); err != nil {
			return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to insert endpoint", err)
		}
		return nil
	}
	if err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to look up endpoint", err)
	}

	if err := r.db.WithContext(ctx).Model(config).Table(r.tableName()).Update(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to update endpoint", err)
	}
	return nil
}

// Delete removes an endpoint definition.
func (r *EndpointRepository) Delete(ctx context.Context, endpointID int) error {
	m := model.EndpointConfig{ID: endpointID}
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to delete endpoint", err)
	}
	return nil
}
