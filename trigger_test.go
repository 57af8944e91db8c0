package topichub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/topichub/model"
)

// triggerFixture wires a store, backlog and capturing invoker into a trigger
// with a fast cadence and a bounded number of iterations.
type triggerFixture struct {
	store    *TopicStore
	backlog  *Backlog
	payloads chan *AfterPublishPayload
}

func newTriggerFixture(t *testing.T, maxIters int) (*triggerFixture, *Trigger) {
	t.Helper()

	f := &triggerFixture{
		store:    NewTopicStore(nil),
		backlog:  NewBacklog(nil),
		payloads: make(chan *AfterPublishPayload, 16),
	}

	invoker := InvokeServiceFunc(func(_ string, payload *AfterPublishPayload) {
		f.payloads <- payload
	})

	trigger, err := NewTrigger(append(
		f.store.TriggerOptions(f.backlog, invoker),
		WithTriggerSleepInterval(time.Millisecond),
		WithTriggerSyncMaxIters(maxIters),
	)...)
	require.NoError(t, err)

	return f, trigger
}

func (f *triggerFixture) addTopic(t *testing.T, id int, name string) *model.Topic {
	t.Helper()

	topic, err := f.store.CreateTopic(model.TopicConfig{
		ID:               id,
		Name:             name,
		IsActive:         true,
		TaskSyncInterval: time.Nanosecond,
	})
	require.NoError(t, err)

	// Make the topic due right away.
	topic.LastSynced = 0

	return topic
}

func (f *triggerFixture) subscribe(subKey, topicName string, withServer bool) {
	f.store.AddSubscription(&model.Subscription{SubKey: subKey, TopicName: topicName})
	if withServer {
		f.store.SetSubKeyServer(&model.SubKeyServer{SubKey: subKey, ServerName: "server1", ServerPID: 1})
	}
}

func TestNewTrigger_RequiresDependencies(t *testing.T) {
	_, err := NewTrigger()
	assert.Error(t, err)

	_, err = NewTrigger(WithTriggerLock(&sync.Mutex{}))
	assert.Error(t, err)
}

func TestTrigger_RunsExactlyMaxIterations(t *testing.T) {
	_, trigger := newTriggerFixture(t, 3)

	trigger.Run(context.Background())

	assert.Equal(t, int64(3), trigger.Iterations())
}

func TestTrigger_SurvivesPanickingCallback(t *testing.T) {
	store := NewTopicStore(nil)
	topic, err := store.CreateTopic(model.TopicConfig{
		ID: 1, Name: "orders.new", IsActive: true, TaskSyncInterval: time.Nanosecond,
	})
	require.NoError(t, err)
	topic.LastSynced = 0
	store.SetSyncHasMsg(1, false, true, "test")

	trigger, err := NewTrigger(
		WithTriggerLock(store.Lock()),
		WithTriggerTopics(store.Topics()),
		WithTriggerInvoker(&NoOpServiceInvoker{}),
		WithTriggerCallbacks(
			func(string) ([]*model.Subscription, error) { panic("boom") },
			func(string) *model.SubKeyServer { return nil },
			func(int, []string) []*model.NonGDEvent { return nil },
			func(int, bool, bool, string) {},
		),
		WithTriggerSleepInterval(time.Millisecond),
		WithTriggerSyncMaxIters(3),
	)
	require.NoError(t, err)

	// Every iteration panics inside; the loop must still complete all three.
	trigger.Run(context.Background())
	assert.Equal(t, int64(3), trigger.Iterations())
}

func TestTrigger_NoDeliveryServerMeansNoDispatch(t *testing.T) {
	f, trigger := newTriggerFixture(t, 3)

	topic := f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", false)

	f.store.SetSyncHasMsg(1, false, true, "test")
	f.backlog.AddMessages("cid1", 1, "orders.new", 100, []string{"thk.a"},
		[]*model.NonGDEvent{{PubMsgID: "thm1", PubTime: model.UTCNow(), ExpirationTime: model.UTCNow() + 60}})

	trigger.Run(context.Background())

	// Nothing was handed over and the dirty flag survived.
	assert.Empty(t, f.payloads)
	assert.True(t, topic.SyncHasNonGDMsg)
	assert.True(t, f.backlog.HasMessagesBySubKey("thk.a"))
}

func TestTrigger_DispatchesNonGDMessages(t *testing.T) {
	f, trigger := newTriggerFixture(t, 5)

	topic := f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", true)

	pubTime := model.UTCNow()
	f.store.SetSyncHasMsg(1, false, true, "test")
	f.backlog.AddMessages("cid1", 1, "orders.new", 100, []string{"thk.a"},
		[]*model.NonGDEvent{{PubMsgID: "thm1", PubTime: pubTime, ExpirationTime: pubTime + 60}})

	trigger.Run(context.Background())

	select {
	case payload := <-f.payloads:
		assert.Equal(t, 1, payload.TopicID)
		assert.Equal(t, "orders.new", payload.TopicName)
		assert.True(t, payload.IsBGCall)
		assert.False(t, payload.HasGDMsgList)
		require.Len(t, payload.NonGDMsgList, 1)
		assert.Equal(t, "thm1", payload.NonGDMsgList[0].PubMsgID)
		assert.Equal(t, pubTime, payload.PubTimeMax)
		require.Len(t, payload.Subscriptions, 1)
		assert.Equal(t, "thk.a", payload.Subscriptions[0].SubKey)
	case <-time.After(time.Second):
		t.Fatal("no after-publish notification")
	}

	assert.False(t, topic.SyncHasNonGDMsg)
	assert.False(t, topic.SyncHasGDMsg)
	assert.False(t, f.backlog.HasMessagesBySubKey("thk.a"))
}

func TestTrigger_DispatchesGDFlag(t *testing.T) {
	f, trigger := newTriggerFixture(t, 5)

	topic := f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", true)

	f.store.MarkPublished(1, true, false, 123.5)

	trigger.Run(context.Background())

	select {
	case payload := <-f.payloads:
		assert.True(t, payload.HasGDMsgList)
		assert.Empty(t, payload.NonGDMsgList)
		assert.Equal(t, 123.5, payload.PubTimeMax)
	case <-time.After(time.Second):
		t.Fatal("no after-publish notification")
	}

	assert.False(t, topic.SyncHasGDMsg)
}

func TestTrigger_NonGDDispatchKeepsGDHighWaterMark(t *testing.T) {
	f, trigger := newTriggerFixture(t, 5)

	topic := f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", true)

	// An earlier GD publish raised the high-water mark and its flag already
	// came down; only the non-GD flag is up now, with an older message.
	f.store.MarkPublished(1, true, false, 1000)
	f.store.SetSyncHasMsg(1, true, false, "test")

	f.store.SetSyncHasMsg(1, false, true, "test")
	f.backlog.AddMessages("cid1", 1, "orders.new", 100, []string{"thk.a"},
		[]*model.NonGDEvent{{PubMsgID: "thm1", PubTime: 5, ExpirationTime: model.UTCNow() + 60}})

	trigger.Run(context.Background())

	select {
	case payload := <-f.payloads:
		assert.False(t, payload.HasGDMsgList)
		require.Len(t, payload.NonGDMsgList, 1)
		assert.Equal(t, 1000.0, payload.PubTimeMax)
	case <-time.After(time.Second):
		t.Fatal("no after-publish notification")
	}

	assert.False(t, topic.SyncHasNonGDMsg)
}

func TestTrigger_DispatchesWhenBacklogEmpty(t *testing.T) {
	f, trigger := newTriggerFixture(t, 5)

	topic := f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", true)

	// Dirty non-GD flag with nothing left in the backlog. Delivery is still
	// told to look, and the flag comes down.
	f.store.SetSyncHasMsg(1, false, true, "test")

	trigger.Run(context.Background())

	select {
	case payload := <-f.payloads:
		assert.False(t, payload.HasGDMsgList)
		assert.Empty(t, payload.NonGDMsgList)
		assert.Equal(t, 0.0, payload.PubTimeMax)
	case <-time.After(time.Second):
		t.Fatal("no after-publish notification")
	}

	assert.False(t, topic.SyncHasNonGDMsg)
}

func TestTrigger_IdleTopicNotDispatched(t *testing.T) {
	f, trigger := newTriggerFixture(t, 3)

	f.addTopic(t, 1, "orders.new")
	f.subscribe("thk.a", "orders.new", true)

	// No dirty flags, nothing pending.
	trigger.Run(context.Background())
	assert.Empty(t, f.payloads)
}

func TestTrigger_StopsOnContextCancel(t *testing.T) {
	_, trigger := newTriggerFixture(t, 0)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		trigger.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trigger did not stop on context cancel")
	}
}

func TestTrigger_EndToEnd(t *testing.T) {
	registry := NewEndpointRegistry(nil)
	store := NewTopicStore(nil)
	backlog := NewBacklog(nil)

	require.NoError(t, registry.Create(model.EndpointConfig{
		ID:            1,
		Name:          "order-service",
		EndpointType:  "rest",
		Role:          model.RolePublisherSubscriber,
		IsActive:      true,
		TopicPatterns: "pub=orders.**\nsub=orders.**",
	}))

	topic, err := store.CreateTopic(model.TopicConfig{
		ID: 1, Name: "orders.new", IsActive: true, TaskSyncInterval: time.Nanosecond,
	})
	require.NoError(t, err)
	topic.LastSynced = 0

	subManager, err := NewSubscriptionManager(registry, store, backlog, nil)
	require.NoError(t, err)

	sub, err := subManager.Subscribe(&SubscribeRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		ServerName: "server1",
		ServerPID:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub=orders.**", sub.SubPatternMatched)

	payloads := make(chan *AfterPublishPayload, 1)
	invoker := InvokeServiceFunc(func(_ string, payload *AfterPublishPayload) {
		payloads <- payload
	})

	trigger, err := NewTrigger(append(
		store.TriggerOptions(backlog, invoker),
		WithTriggerSleepInterval(time.Millisecond),
	)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trigger.Run(ctx)
	defer trigger.Stop()

	publisher, err := NewPublisher(
		WithPublisherRegistry(registry),
		WithPublisherStore(store),
		WithPublisherBacklog(backlog),
		WithPublisherServerIdentity("server1", 1),
	)
	require.NoError(t, err)

	result, err := publisher.Publish(ctx, &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Data:       `{"orderId": 123}`,
	})
	require.NoError(t, err)
	assert.False(t, result.HasGD)

	select {
	case payload := <-payloads:
		require.Len(t, payload.NonGDMsgList, 1)

		msg, err := model.NewNonGDMessage(sub.SubKey, "server1", 1, payload.NonGDMsgList[0])
		require.NoError(t, err)
		assert.Equal(t, result.PubMsgID, msg.PubMsgID)
		assert.Equal(t, "sub=orders.**", msg.SubPatternMatched)
		assert.Equal(t, `{"orderId": 123}`, msg.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("message was never handed over to delivery")
	}

	assert.Equal(t, 0, backlog.MessageCount())
	assert.False(t, topic.SyncHasNonGDMsg)
}
