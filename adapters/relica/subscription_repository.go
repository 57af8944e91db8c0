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

// SubscriptionRepository implements topichub.SubscriptionRepository using Relica ORM.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "topichub_"}
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscription"
}

// LoadAll retrieves every subscription, in creation order.
func (r *SubscriptionRepository) LoadAll(ctx context.Context) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("creation_time ASC").
		All(&subs)
	if err != nil {
		return nil, topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to load subscriptions", err)
	}
	return subs, nil
}

// Save creates or updates a subscription, keyed by its sub-key.
func (r *SubscriptionRepository) Save(ctx context.Context, sub *model.Subscription) error {
	var existing model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("sub_key = ?", sub.SubKey).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := r.db.WithContext(ctx).Model(sub).Table(r.tableName()).Insert(); err != nil {
			return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to insert subscription", err)
		}
		return nil
	}
	if err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to look up subscription", err)
	}

	sub.ID = existing.ID
	if err := r.db.WithContext(ctx).Model(sub).Table(r.tableName()).Update(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to update subscription", err)
	}
	return nil
}

// DeleteBySubKey removes the subscription with the given sub-key.
func (r *SubscriptionRepository) DeleteBySubKey(ctx context.Context, subKey string) error {
	var existing model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("sub_key = ?", subKey).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		return topichub.ErrNoData
	}
	if err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to look up subscription", err)
	}

	if err := r.db.WithContext(ctx).Model(&existing).Table(r.tableName()).Delete(); err != nil {
		return topichub.NewErrorWithCause(topichub.ErrCodeDatabase, "failed to delete subscription", err)
	}
	return nil
}
