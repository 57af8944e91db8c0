package topichub

import (
	"context"

	"github.com/coregx/topichub/model"
)

// TopicRepository persists topic definitions.
type TopicRepository interface {
	// LoadAll returns every topic definition, for warming the store at startup.
	LoadAll(ctx context.Context) ([]model.TopicConfig, error)

	// Save inserts or updates a topic definition.
	Save(ctx context.Context, config *model.TopicConfig) error

	// Delete removes a topic definition.
	Delete(ctx context.Context, topicID int) error
}

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	// LoadAll returns every subscription, for warming the store at startup.
	LoadAll(ctx context.Context) ([]model.Subscription, error)

	// Save inserts or updates a subscription.
	Save(ctx context.Context, sub *model.Subscription) error

	// DeleteBySubKey removes the subscription with the given sub-key.
	DeleteBySubKey(ctx context.Context, subKey string) error
}

// EndpointRepository persists endpoint definitions.
type EndpointRepository interface {
	// LoadAll returns every endpoint definition, for warming the registry
	// at startup.
	LoadAll(ctx context.Context) ([]model.EndpointConfig, error)

	// Save inserts or updates an endpoint definition.
	Save(ctx context.Context, config *model.EndpointConfig) error

	// Delete removes an endpoint definition.
	Delete(ctx context.Context, endpointID int) error
}

// MessageRepository persists guaranteed-delivery messages and their
// per-subscriber queue entries.
type MessageRepository interface {
	// Insert stores one GD message and enqueues it for each sub-key.
	Insert(ctx context.Context, row *model.GDMessageRow, subKeys []string) error

	// FindBySubKeys returns the pending queue entries of a topic for the
	// given sub-keys, joined with their messages, oldest first.
	FindBySubKeys(ctx context.Context, topicID int, subKeys []string) ([]model.GDMessageRow, error)

	// DeleteExpired removes messages whose expiration time has passed and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now float64) (int64, error)
}
