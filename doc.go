// Package topichub provides a publish/subscribe delivery and synchronization
// engine for Go, with glob-based topic permissions, guaranteed-delivery (GD)
// messages stored in SQL and transient (non-GD) messages kept in RAM.
//
// Works both as a library for embedding in your application AND as a
// standalone server binary.
//
// # Features
//
//   - Glob topic permissions: orders.** and orders.* patterns, first match wins
//   - Endpoint registry with security, WebSocket channel and service lookups
//   - GD messages persisted through pluggable repositories (Relica adapters)
//   - Non-GD messages held in an in-RAM backlog with per-subscriber fan-out
//   - Background sync trigger that hands pending topics over to delivery
//   - Priority and publish-time message ordering for delivery tasks
//   - Options Pattern for modern Go API design
//   - Pluggable architecture: bring your own Logger and ServiceInvoker
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//   - Prometheus metrics for trigger, publish and backlog activity
//
// # Quick Start
//
// Set up the in-memory parts and start the sync trigger:
//
//	logger := myLogger()
//
//	registry := topichub.NewEndpointRegistry(logger)
//	store := topichub.NewTopicStore(logger)
//	backlog := topichub.NewBacklog(logger)
//
//	_ = registry.Create(model.EndpointConfig{
//	    ID:            1,
//	    Name:          "order-service",
//	    Role:          model.RolePublisherSubscriber,
//	    TopicPatterns: "pub=orders.**\nsub=orders.confirmed.*",
//	})
//
//	_, _ = store.CreateTopic(model.TopicConfig{ID: 1, Name: "orders.new", IsActive: true})
//
//	trigger, _ := topichub.NewTrigger(append(
//	    store.TriggerOptions(backlog, myInvoker()),
//	    topichub.WithTriggerLogger(logger),
//	)...)
//	go trigger.Run(ctx)
//
// Publish a message:
//
//	publisher, _ := topichub.NewPublisher(
//	    topichub.WithPublisherRegistry(registry),
//	    topichub.WithPublisherStore(store),
//	    topichub.WithPublisherBacklog(backlog),
//	    topichub.WithPublisherLogger(logger),
//	)
//
//	result, err := publisher.Publish(ctx, &topichub.PublishRequest{
//	    TopicName:  "orders.new",
//	    EndpointID: 1,
//	    Data:       `{"orderId": 123}`,
//	})
//
// For GD topics, wire a message repository backed by SQL:
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/topichub?parseTime=true")
//	repos := relica.NewRepositories(db, "mysql")
//
//	publisher, _ := topichub.NewPublisher(
//	    topichub.WithPublisherRegistry(registry),
//	    topichub.WithPublisherStore(store),
//	    topichub.WithPublisherBacklog(backlog),
//	    topichub.WithPublisherMessageRepository(repos.Message),
//	)
//
// The embedded migrations in Migrations can be applied with goose,
// golang-migrate or any tool that understands an fs.FS of SQL files.
package topichub
