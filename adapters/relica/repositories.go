package relica

import (
	"database/sql"

	"github.com/coregx/topichub"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Topic        topichub.TopicRepository
	Subscription topichub.SubscriptionRepository
	Endpoint     topichub.EndpointRepository
	Message      topichub.MessageRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "topichub_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Topic:        NewTopicRepository(db, driverName),
		Subscription: NewSubscriptionRepository(db, driverName),
		Endpoint:     NewEndpointRepository(db, driverName),
		Message:      NewMessageRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Topic:        NewTopicRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		Endpoint:     NewEndpointRepositoryWithPrefix(db, driverName, prefix),
		Message:      NewMessageRepositoryWithPrefix(db, driverName, prefix),
	}
}
