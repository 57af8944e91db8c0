package topichub

import (
	"fmt"
	"sync"

	"github.com/coregx/topichub/model"
)

// TopicStore holds the in-RAM working set of topics, subscriptions and
// sub-key delivery servers, and owns the coordinating lock that the sync
// trigger and publishers share.
//
// All exported methods take the lock; the unexported variants assume the
// caller already holds it, which is how the trigger keeps a whole iteration
// atomic without re-entering the mutex.
type TopicStore struct {
	lock *sync.Mutex

	topics        map[int]*model.Topic
	topicNameToID map[string]int

	// Subscriptions per topic name, in creation order.
	subscriptionsByTopic map[string][]*model.Subscription

	// Which server a sub-key's messages are delivered through.
	subKeyServers map[string]*model.SubKeyServer

	logger Logger
}

// NewTopicStore creates an empty store. A nil logger means no logging.
func NewTopicStore(logger Logger) *TopicStore {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &TopicStore{
		lock:                 &sync.Mutex{},
		topics:               map[int]*model.Topic{},
		topicNameToID:        map[string]int{},
		subscriptionsByTopic: map[string][]*model.Subscription{},
		subKeyServers:        map[string]*model.SubKeyServer{},
		logger:               logger,
	}
}

// Lock returns the store's coordinating mutex. The sync trigger holds it
// for the duration of each iteration.
func (s *TopicStore) Lock() *sync.Mutex {
	return s.lock
}

// Topics returns the live topic map, keyed by topic id. Callers other than
// the trigger must hold the store lock while reading it.
func (s *TopicStore) Topics() map[int]*model.Topic {
	return s.topics
}

// CreateTopic builds a topic from its config and adds it to the store,
// replacing any previous topic of the same id.
func (s *TopicStore) CreateTopic(config model.TopicConfig) (*model.Topic, error) {
	topic, err := model.NewTopic(config)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.topics[topic.ID] = topic
	s.topicNameToID[topic.Name] = topic.ID

	s.logger.Infof("Created topic `%s` (id:%d gd:%t)", topic.Name, topic.ID, topic.HasGD)

	return topic, nil
}

// DeleteTopic removes a topic along with its subscriptions.
func (s *TopicStore) DeleteTopic(topicID int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	topic, ok := s.topics[topicID]
	if !ok {
		return
	}

	delete(s.topics, topicID)
	delete(s.topicNameToID, topic.Name)
	delete(s.subscriptionsByTopic, topic.Name)
}

// GetTopicByID returns the topic with the given id.
func (s *TopicStore) GetTopicByID(topicID int) (*model.Topic, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	topic, ok := s.topics[topicID]
	if !ok {
		return nil, NewError(ErrCodeNotFound, fmt.Sprintf("no such topic id `%d`", topicID))
	}
	return topic, nil
}

// GetTopicByName returns the topic with the given name.
func (s *TopicStore) GetTopicByName(name string) (*model.Topic, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	topicID, ok := s.topicNameToID[name]
	if !ok {
		return nil, NewError(ErrCodeNotFound, fmt.Sprintf("no such topic `%s`", name))
	}
	return s.topics[topicID], nil
}

// AddSubscription appends a subscription to its topic's list. Creation order
// is preserved, which is also the order subscribers see messages in.
func (s *TopicStore) AddSubscription(sub *model.Subscription) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.subscriptionsByTopic[sub.TopicName] = append(s.subscriptionsByTopic[sub.TopicName], sub)

	s.logger.Infof("Added subscription `%s` to topic `%s` (endpoint:%d)", sub.SubKey, sub.TopicName, sub.EndpointID)
}

// RemoveSubscription removes the subscription with the given sub-key from
// a topic, if present.
func (s *TopicStore) RemoveSubscription(topicName, subKey string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	subs := s.subscriptionsByTopic[topicName]
	for i, sub := range subs {
		if sub.SubKey == subKey {
			s.subscriptionsByTopic[topicName] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// GetSubscriptionsByTopic returns a copy of the subscription list for a topic.
// An unknown topic yields an empty list, not an error.
func (s *TopicStore) GetSubscriptionsByTopic(topicName string) ([]*model.Subscription, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.getSubscriptionsByTopic(topicName)
}

func (s *TopicStore) getSubscriptionsByTopic(topicName string) ([]*model.Subscription, error) {
	subs := s.subscriptionsByTopic[topicName]
	out := make([]*model.Subscription, len(subs))
	copy(out, subs)
	return out, nil
}

// SetSubKeyServer records which server delivers messages for a sub-key.
func (s *TopicStore) SetSubKeyServer(sks *model.SubKeyServer) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.subKeyServers[sks.SubKey] = sks

	s.logger.Infof("Set delivery server for sub-key `%s` (%s:%d)", sks.SubKey, sks.ServerName, sks.ServerPID)
}

// RemoveSubKeyServer forgets the delivery server for a sub-key.
func (s *TopicStore) RemoveSubKeyServer(subKey string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.subKeyServers, subKey)
}

// GetDeliveryServerBySubKey returns the delivery server for a sub-key, or
// nil when none is assigned yet. A nil result is routine while a subscriber
// has not connected anywhere.
func (s *TopicStore) GetDeliveryServerBySubKey(subKey string) *model.SubKeyServer {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.getDeliveryServerBySubKey(subKey)
}

func (s *TopicStore) getDeliveryServerBySubKey(subKey string) *model.SubKeyServer {
	return s.subKeyServers[subKey]
}

// SetSyncHasMsg flips one of a topic's two dirty flags. Source names the
// caller for diagnostics.
func (s *TopicStore) SetSyncHasMsg(topicID int, isGD, value bool, source string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.setSyncHasMsg(topicID, isGD, value, source)
}

func (s *TopicStore) setSyncHasMsg(topicID int, isGD, value bool, source string) {
	topic, ok := s.topics[topicID]
	if !ok {
		s.logger.Warnf("Cannot set sync flag, no such topic id `%d` (source:%s)", topicID, source)
		return
	}

	if isGD {
		topic.SyncHasGDMsg = value
	} else {
		topic.SyncHasNonGDMsg = value
	}
}

// MarkPublished records the outcome of a publication on its topic: dirty
// flags, message counters and the greatest GD publication time seen so far.
func (s *TopicStore) MarkPublished(topicID int, hasGD, hasNonGD bool, pubTime float64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	topic, ok := s.topics[topicID]
	if !ok {
		s.logger.Warnf("Cannot mark publication, no such topic id `%d`", topicID)
		return
	}

	topic.IncrTopicMsgCounter(hasGD, hasNonGD)

	if hasGD {
		topic.SyncHasGDMsg = true
		if pubTime > topic.GDPubTimeMax {
			topic.GDPubTimeMax = pubTime
		}
	}
	if hasNonGD {
		topic.SyncHasNonGDMsg = true
	}
}

// TriggerOptions bundles the store-side wiring a sync trigger needs: the
// coordinating lock, the live topic map and lock-free callbacks into the
// store and backlog. The trigger calls these while already holding the lock.
func (s *TopicStore) TriggerOptions(backlog *Backlog, invoker ServiceInvoker) []TriggerOption {
	return []TriggerOption{
		WithTriggerLock(s.lock),
		WithTriggerTopics(s.topics),
		WithTriggerInvoker(invoker),
		WithTriggerCallbacks(
			s.getSubscriptionsByTopic,
			s.getDeliveryServerBySubKey,
			backlog.GetDeleteMessagesBySubKeys,
			s.setSyncHasMsg,
		),
	}
}
