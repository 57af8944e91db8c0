package topichub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/topichub/metrics"
	"github.com/coregx/topichub/model"
)

// DefaultTriggerSleepInterval is the pause between trigger iterations.
const DefaultTriggerSleepInterval = 10 * time.Millisecond

// GetSubscriptionsByTopicFunc returns the subscriptions of a topic.
type GetSubscriptionsByTopicFunc func(topicName string) ([]*model.Subscription, error)

// GetDeliveryServerBySubKeyFunc returns the delivery server of a sub-key,
// or nil when none is assigned.
type GetDeliveryServerBySubKeyFunc func(subKey string) *model.SubKeyServer

// BacklogGetDeleteMessagesFunc pulls pending non-GD messages for the given
// sub-keys out of the backlog, removing them as it goes.
type BacklogGetDeleteMessagesFunc func(topicID int, subKeys []string) []*model.NonGDEvent

// SetSyncHasMsgFunc flips one of a topic's dirty flags.
type SetSyncHasMsgFunc func(topicID int, isGD, value bool, source string)

// triggerTopicInfo is what the scan phase records about a topic that is due.
type triggerTopicInfo struct {
	name          string
	subscriptions []*model.Subscription
}

// Trigger is the periodic loop that notices topics with pending messages and
// hands them over to delivery.
//
// Each iteration takes the coordinating lock, scans every topic, and for the
// ones that are due and dirty and have at least one subscriber with a
// resolvable delivery server, pulls their non-GD backlog and fires an
// after-publish notification. Dirty flags are cleared only for topics that
// were actually handed over, so nothing pending is ever forgotten.
//
// A panic or error in one iteration is logged and the loop continues.
type Trigger struct {
	lock   *sync.Mutex
	topics map[int]*model.Topic

	getSubscriptions  GetSubscriptionsByTopicFunc
	getDeliveryServer GetDeliveryServerBySubKeyFunc
	backlogGetDelete  BacklogGetDeleteMessagesFunc
	setSyncHasMsg     SetSyncHasMsgFunc

	invoker ServiceInvoker
	logger  Logger

	syncMaxIters  int
	sleepInterval time.Duration

	keepRunning atomic.Bool
	iterations  atomic.Int64
}

// NewTrigger creates a trigger from the given options. The lock, topic map,
// invoker and all four callbacks are required; TopicStore.TriggerOptions
// provides them in one call.
func NewTrigger(opts ...TriggerOption) (*Trigger, error) {
	t := &Trigger{
		sleepInterval: DefaultTriggerSleepInterval,
		logger:        &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	if t.lock == nil {
		return nil, NewError(ErrCodeConfiguration, "lock is required, use WithTriggerLock")
	}
	if t.topics == nil {
		return nil, NewError(ErrCodeConfiguration, "topics are required, use WithTriggerTopics")
	}
	if t.invoker == nil {
		return nil, NewError(ErrCodeConfiguration, "invoker is required, use WithTriggerInvoker")
	}
	if t.getSubscriptions == nil {
		return nil, NewError(ErrCodeConfiguration, "callbacks are required, use WithTriggerCallbacks")
	}

	return t, nil
}

// Iterations returns how many iterations have run so far.
func (t *Trigger) Iterations() int64 {
	return t.iterations.Load()
}

// Stop makes Run return after its current iteration.
func (t *Trigger) Stop() {
	t.keepRunning.Store(false)
}

// Run executes the trigger loop until the context is cancelled, Stop is
// called, or the configured maximum number of iterations is reached.
func (t *Trigger) Run(ctx context.Context) {
	t.keepRunning.Store(true)

	t.logger.Infof("Starting sync trigger (interval:%s max-iters:%d)", t.sleepInterval, t.syncMaxIters)

	for t.keepRunning.Load() {
		if t.syncMaxIters > 0 && t.iterations.Load() >= int64(t.syncMaxIters) {
			t.logger.Infof("Sync trigger reached %d iteration(s), stopping", t.syncMaxIters)
			return
		}

		select {
		case <-ctx.Done():
			t.logger.Info("Sync trigger stopping, context cancelled")
			return
		case <-time.After(t.sleepInterval):
		}

		t.iterations.Add(1)
		metrics.TriggerIterations.Inc()

		if err := t.runIteration(); err != nil {
			metrics.TriggerErrors.Inc()
			t.logger.Errorf("Sync trigger iteration failed: %v", err)
		}
	}
}

// runIteration performs one full scan-and-dispatch pass under the lock.
// A panic anywhere inside is converted to an error so the loop survives it.
func (t *Trigger) runIteration() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sync trigger iteration: %v", r)
		}
	}()

	t.lock.Lock()
	defer t.lock.Unlock()

	// Scan phase. A topic is recorded for dispatch only if it is due, has
	// at least one dirty flag set and at least one of its subscribers has
	// a delivery server to hand messages to.
	dueTopics := map[int]triggerTopicInfo{}

	for _, topic := range t.topics {
		if !topic.NeedsTaskSync() {
			continue
		}

		// Updated regardless of whether there is anything to do, so an
		// idle topic is not re-examined on every iteration.
		topic.UpdateTaskSyncTime()

		if !topic.SyncHasGDMsg && !topic.SyncHasNonGDMsg {
			continue
		}

		subs, err := t.getSubscriptions(topic.Name)
		if err != nil {
			return err
		}

		var deliverable []*model.Subscription
		for _, sub := range subs {
			if t.getDeliveryServer(sub.SubKey) != nil {
				deliverable = append(deliverable, sub)
			}
		}

		if len(deliverable) == 0 {
			continue
		}

		dueTopics[topic.ID] = triggerTopicInfo{name: topic.Name, subscriptions: deliverable}
	}

	// Dispatch phase.
	for topicID, info := range dueTopics {
		cid := NewCID()
		topic := t.topics[topicID]

		t.logger.Debugf("Triggering sync for `%s` (cid:%s subs:%d)", info.name, cid, len(info.subscriptions))

		subKeys := make([]string, 0, len(info.subscriptions))
		for _, sub := range info.subscriptions {
			subKeys = append(subKeys, sub.SubKey)
		}

		nonGDMsgList := t.backlogGetDelete(topicID, subKeys)
		hasGDMsgList := topic.SyncHasGDMsg

		// The scan only records dirty topics, so delivery is notified even
		// when the backlog pull came back empty. The topic's GD high-water
		// mark always contributes to pub_time_max; the backlog returns
		// messages sorted by publication time.
		pubTimeMax := topic.GDPubTimeMax
		if len(nonGDMsgList) > 0 {
			if last := nonGDMsgList[len(nonGDMsgList)-1].PubTime; last > pubTimeMax {
				pubTimeMax = last
			}
		}

		t.spawnNotify(&AfterPublishPayload{
			CID:           cid,
			TopicID:       topicID,
			TopicName:     info.name,
			Subscriptions: info.subscriptions,
			NonGDMsgList:  nonGDMsgList,
			HasGDMsgList:  hasGDMsgList,
			IsBGCall:      true,
			PubTimeMax:    pubTimeMax,
		})

		metrics.TriggerTopicsSynced.Inc()
		metrics.TriggerNonGDForwarded.Add(float64(len(nonGDMsgList)))
	}

	// Flags come down only for topics that were handed over; anything the
	// scan skipped keeps its flags and is retried next time around.
	for topicID := range dueTopics {
		t.setSyncHasMsg(topicID, true, false, "Trigger.run")
		t.setSyncHasMsg(topicID, false, false, "Trigger.run")
	}

	return nil
}

// spawnNotify fires the after-publish notification without blocking the
// iteration. The callback runs outside the lock.
func (t *Trigger) spawnNotify(payload *AfterPublishPayload) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Errorf("Panic in after-publish notification for `%s` (cid:%s): %v",
					payload.TopicName, payload.CID, r)
			}
		}()
		t.invoker.InvokeService(ServiceAfterPublish, payload)
	}()
}
