package topichub

import (
	"sync"
	"time"

	"github.com/coregx/topichub/model"
)

// TriggerOption configures a Trigger during construction.
type TriggerOption func(*Trigger) error

// WithTriggerLock sets the coordinating lock the trigger holds for the
// duration of each iteration. Required; normally the topic store's lock.
func WithTriggerLock(lock *sync.Mutex) TriggerOption {
	return func(t *Trigger) error {
		if lock == nil {
			return NewError(ErrCodeConfiguration, "lock cannot be nil")
		}
		t.lock = lock
		return nil
	}
}

// WithTriggerTopics sets the live topic map the trigger scans. Required;
// normally the topic store's map, shared by reference.
func WithTriggerTopics(topics map[int]*model.Topic) TriggerOption {
	return func(t *Trigger) error {
		if topics == nil {
			return NewError(ErrCodeConfiguration, "topics cannot be nil")
		}
		t.topics = topics
		return nil
	}
}

// WithTriggerInvoker sets the service invoker that receives after-publish
// notifications. Required.
func WithTriggerInvoker(invoker ServiceInvoker) TriggerOption {
	return func(t *Trigger) error {
		if invoker == nil {
			return NewError(ErrCodeConfiguration, "invoker cannot be nil")
		}
		t.invoker = invoker
		return nil
	}
}

// WithTriggerCallbacks wires the trigger into the store and backlog. All
// four callbacks are required and are invoked with the coordinating lock
// already held, so they must not take it again.
func WithTriggerCallbacks(
	getSubscriptions GetSubscriptionsByTopicFunc,
	getDeliveryServer GetDeliveryServerBySubKeyFunc,
	backlogGetDelete BacklogGetDeleteMessagesFunc,
	setSyncHasMsg SetSyncHasMsgFunc,
) TriggerOption {
	return func(t *Trigger) error {
		if getSubscriptions == nil || getDeliveryServer == nil || backlogGetDelete == nil || setSyncHasMsg == nil {
			return NewError(ErrCodeConfiguration, "all trigger callbacks are required")
		}
		t.getSubscriptions = getSubscriptions
		t.getDeliveryServer = getDeliveryServer
		t.backlogGetDelete = backlogGetDelete
		t.setSyncHasMsg = setSyncHasMsg
		return nil
	}
}

// WithTriggerSyncMaxIters bounds how many iterations Run executes before
// returning. Zero, the default, means run until stopped.
func WithTriggerSyncMaxIters(maxIters int) TriggerOption {
	return func(t *Trigger) error {
		if maxIters < 0 {
			return NewError(ErrCodeConfiguration, "sync max iters cannot be negative")
		}
		t.syncMaxIters = maxIters
		return nil
	}
}

// WithTriggerSleepInterval sets the pause between iterations.
func WithTriggerSleepInterval(interval time.Duration) TriggerOption {
	return func(t *Trigger) error {
		if interval <= 0 {
			return NewError(ErrCodeConfiguration, "sleep interval must be positive")
		}
		t.sleepInterval = interval
		return nil
	}
}

// WithTriggerLogger sets the trigger's logger.
func WithTriggerLogger(logger Logger) TriggerOption {
	return func(t *Trigger) error {
		if logger == nil {
			return NewError(ErrCodeConfiguration, "logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}
