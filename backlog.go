package topichub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coregx/topichub/metrics"
	"github.com/coregx/topichub/model"
)

// DefaultBacklogCleanupInterval is how often RunCleanup sweeps expired
// messages out of the backlog.
const DefaultBacklogCleanupInterval = 30 * time.Second

// Backlog keeps non-GD messages in RAM until the sync trigger hands them to
// delivery. A message published to a topic fans out to every current
// subscriber, so the same event is indexed once per interested sub-key and
// removed everywhere the moment it is consumed.
//
// The backlog has its own lock, independent of the topic store's, because
// publishers append to it outside any store-level critical section.
//
// Thread safety: safe for concurrent use.
type Backlog struct {
	mu sync.Mutex

	// subKey -> set of msg ids awaiting that sub-key.
	subKeyToMsgID map[string]map[string]struct{}

	// msg id -> set of sub-keys still to consume it.
	msgIDToSubKey map[string]map[string]struct{}

	msgIDToMsg map[string]*model.NonGDEvent

	// topic id -> set of msg ids, so whole topics can be cleared.
	topicMsgID map[int]map[string]struct{}

	logger Logger
}

// NewBacklog creates an empty backlog. A nil logger means no logging.
func NewBacklog(logger Logger) *Backlog {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Backlog{
		subKeyToMsgID: map[string]map[string]struct{}{},
		msgIDToSubKey: map[string]map[string]struct{}{},
		msgIDToMsg:    map[string]*model.NonGDEvent{},
		topicMsgID:    map[int]map[string]struct{}{},
		logger:        logger,
	}
}

// AddMessages indexes events for each of the given sub-keys. A sub-key whose
// queue is already at maxDepth does not receive the new events; the overflow
// is logged and the other sub-keys are unaffected.
func (b *Backlog) AddMessages(cid string, topicID int, topicName string, maxDepth int, subKeys []string, events []*model.NonGDEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subKey := range subKeys {
		msgIDs, ok := b.subKeyToMsgID[subKey]
		if !ok {
			msgIDs = map[string]struct{}{}
			b.subKeyToMsgID[subKey] = msgIDs
		}

		if len(msgIDs)+len(events) > maxDepth {
			b.logger.Warnf(
				"Reached max depth of %d for sub-key `%s` in topic `%s`, discarding %d message(s) (cid:%s)",
				maxDepth, subKey, topicName, len(events), cid)
			continue
		}

		for _, event := range events {
			msgIDs[event.PubMsgID] = struct{}{}

			subKeys, ok := b.msgIDToSubKey[event.PubMsgID]
			if !ok {
				subKeys = map[string]struct{}{}
				b.msgIDToSubKey[event.PubMsgID] = subKeys
			}
			subKeys[subKey] = struct{}{}

			b.msgIDToMsg[event.PubMsgID] = event

			topicMsgIDs, ok := b.topicMsgID[topicID]
			if !ok {
				topicMsgIDs = map[string]struct{}{}
				b.topicMsgID[topicID] = topicMsgIDs
			}
			topicMsgIDs[event.PubMsgID] = struct{}{}
		}
	}

	metrics.BacklogMessages.Set(float64(len(b.msgIDToMsg)))
}

// GetDeleteMessagesBySubKeys returns all pending messages for the given
// sub-keys of a topic and removes them from the backlog. Each message is
// returned once even when several of the sub-keys await it. Messages that
// expired while queued are dropped, not returned.
func (b *Backlog) GetDeleteMessagesBySubKeys(topicID int, subKeys []string) []*model.NonGDEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getDeleteMessagesBySubKeys(topicID, subKeys)
}

func (b *Backlog) getDeleteMessagesBySubKeys(topicID int, subKeys []string) []*model.NonGDEvent {
	now := model.UTCNow()

	seen := map[string]struct{}{}
	var out []*model.NonGDEvent

	for _, subKey := range subKeys {
		for msgID := range b.subKeyToMsgID[subKey] {
			if _, ok := seen[msgID]; ok {
				continue
			}
			seen[msgID] = struct{}{}

			event := b.msgIDToMsg[msgID]
			if event == nil {
				continue
			}
			if event.ExpirationTime != 0 && now >= event.ExpirationTime {
				continue
			}
			out = append(out, event)
		}
	}

	for msgID := range seen {
		b.deleteMessage(topicID, msgID)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].PubTime < out[j].PubTime
	})

	return out
}

// deleteMessage removes one message from every index.
// Must be called with the lock held.
func (b *Backlog) deleteMessage(topicID int, msgID string) {
	for subKey := range b.msgIDToSubKey[msgID] {
		delete(b.subKeyToMsgID[subKey], msgID)
		if len(b.subKeyToMsgID[subKey]) == 0 {
			delete(b.subKeyToMsgID, subKey)
		}
	}
	delete(b.msgIDToSubKey, msgID)
	delete(b.msgIDToMsg, msgID)

	if topicMsgIDs, ok := b.topicMsgID[topicID]; ok {
		delete(topicMsgIDs, msgID)
		if len(topicMsgIDs) == 0 {
			delete(b.topicMsgID, topicID)
		}
	}

	metrics.BacklogMessages.Set(float64(len(b.msgIDToMsg)))
}

// HasMessagesBySubKey reports whether any messages await the sub-key.
func (b *Backlog) HasMessagesBySubKey(subKey string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subKeyToMsgID[subKey]) > 0
}

// MessageCount returns the number of distinct messages held.
func (b *Backlog) MessageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgIDToMsg)
}

// ClearTopic drops every message queued for a topic.
func (b *Backlog) ClearTopic(topicID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for msgID := range b.topicMsgID[topicID] {
		b.deleteMessage(topicID, msgID)
	}
}

// Unsubscribe detaches the given sub-keys from all messages of a topic.
// Messages nobody else awaits are removed entirely.
func (b *Backlog) Unsubscribe(topicID int, subKeys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subKey := range subKeys {
		for msgID := range b.subKeyToMsgID[subKey] {
			delete(b.msgIDToSubKey[msgID], subKey)
			if len(b.msgIDToSubKey[msgID]) == 0 {
				b.deleteMessage(topicID, msgID)
			}
		}
		delete(b.subKeyToMsgID, subKey)
	}
}

// RunCleanup sweeps expired messages until the context is cancelled. Meant
// to run in its own goroutine.
func (b *Backlog) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBacklogCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := b.removeExpired(); removed > 0 {
				b.logger.Debugf("Removed %d expired message(s) from backlog", removed)
			}
		}
	}
}

func (b *Backlog) removeExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := model.UTCNow()
	removed := 0

	for topicID, msgIDs := range b.topicMsgID {
		for msgID := range msgIDs {
			event := b.msgIDToMsg[msgID]
			if event == nil {
				continue
			}
			if event.ExpirationTime != 0 && now >= event.ExpirationTime {
				b.deleteMessage(topicID, msgID)
				removed++
			}
		}
	}

	return removed
}
