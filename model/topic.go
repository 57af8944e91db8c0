package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Default topic limits, applied by NewTopic when the config leaves them zero.
const (
	DefaultMaxDepthGD       = 10000
	DefaultMaxDepthNonGD    = 1000
	DefaultTaskSyncInterval = 500 * time.Millisecond
)

// TopicConfig is the administrative definition of a topic, as loaded from
// storage or supplied by an admin operation.
type TopicConfig struct {
	ID               int           `db:"id"`
	Name             string        `db:"name"`
	IsActive         bool          `db:"is_active"`
	IsInternal       bool          `db:"is_internal"`
	HasGD            bool          `db:"has_gd"`
	MaxDepthGD       int           `db:"max_depth_gd"`
	MaxDepthNonGD    int           `db:"max_depth_non_gd"`
	TaskSyncInterval time.Duration `db:"-"`
}

// TableName returns the database table name for TopicConfig.
func (c TopicConfig) TableName() string {
	return tablePrefix + "topic"
}

// Validate checks that the config describes a usable topic.
func (c TopicConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Name, validation.Required),
	)
}

// Topic is the in-process view of a single topic.
//
// The dirty flags SyncHasGDMsg and SyncHasNonGDMsg are set only by publish
// operations and cleared only by the sync trigger after a dispatch; both
// mutations happen with the store's coordinating lock held.
type Topic struct {
	ID            int
	Name          string
	IsActive      bool
	IsInternal    bool
	HasGD         bool
	MaxDepthGD    int
	MaxDepthNonGD int

	// Task sync cadence in seconds, compared against LastSynced.
	TaskSyncInterval float64

	// When subscribers were last notified about messages from this server.
	LastSynced float64

	SyncHasGDMsg    bool
	SyncHasNonGDMsg bool

	// The last time a GD message was published to this topic.
	GDPubTimeMax float64

	// Per-server publication counters.
	MsgPubCounter      int
	MsgPubCounterGD    int
	MsgPubCounterNonGD int
}

// NewTopic builds a Topic from its config, filling in defaults.
func NewTopic(config TopicConfig) (*Topic, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.MaxDepthGD == 0 {
		config.MaxDepthGD = DefaultMaxDepthGD
	}
	if config.MaxDepthNonGD == 0 {
		config.MaxDepthNonGD = DefaultMaxDepthNonGD
	}
	if config.TaskSyncInterval == 0 {
		config.TaskSyncInterval = DefaultTaskSyncInterval
	}

	return &Topic{
		ID:               config.ID,
		Name:             config.Name,
		IsActive:         config.IsActive,
		IsInternal:       config.IsInternal,
		HasGD:            config.HasGD,
		MaxDepthGD:       config.MaxDepthGD,
		MaxDepthNonGD:    config.MaxDepthNonGD,
		TaskSyncInterval: config.TaskSyncInterval.Seconds(),
		LastSynced:       UTCNow(),
	}, nil
}

// NeedsTaskSync reports whether enough time has passed since the last sync
// for the trigger to consider this topic again.
func (t *Topic) NeedsTaskSync() bool {
	return UTCNow()-t.LastSynced >= t.TaskSyncInterval
}

// UpdateTaskSyncTime resets the sync cadence clock.
func (t *Topic) UpdateTaskSyncTime() {
	t.LastSynced = UTCNow()
}

// IncrTopicMsgCounter increases the per-server publication counters.
func (t *Topic) IncrTopicMsgCounter(hasGD, hasNonGD bool) {
	t.MsgPubCounter++
	if hasGD {
		t.MsgPubCounterGD++
	}
	if hasNonGD {
		t.MsgPubCounterNonGD++
	}
}
