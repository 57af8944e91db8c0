// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides production-ready implementations of all topichub repository
// interfaces:
//   - TopicRepository
//   - SubscriptionRepository
//   - EndpointRepository
//   - MessageRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/topichub"
//	    "github.com/coregx/topichub/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/topichub_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql")
//
//	// Wire them into a publisher
//	publisher, err := topichub.NewPublisher(
//	    topichub.WithPublisherRegistry(registry),
//	    topichub.WithPublisherStore(store),
//	    topichub.WithPublisherBacklog(backlog),
//	    topichub.WithPublisherMessageRepository(repos.Message),
//	)
package relica
