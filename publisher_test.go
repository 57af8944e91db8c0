package topichub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/topichub/model"
)

type publishFixture struct {
	registry *EndpointRegistry
	store    *TopicStore
	backlog  *Backlog
}

func newPublishFixture(t *testing.T) *publishFixture {
	t.Helper()

	f := &publishFixture{
		registry: NewEndpointRegistry(nil),
		store:    NewTopicStore(nil),
		backlog:  NewBacklog(nil),
	}

	require.NoError(t, f.registry.Create(model.EndpointConfig{
		ID:            1,
		Name:          "order-service",
		EndpointType:  "rest",
		Role:          model.RolePublisherSubscriber,
		IsActive:      true,
		SecurityID:    100,
		TopicPatterns: "pub=orders.**\nsub=orders.**",
	}))
	require.NoError(t, f.registry.Create(model.EndpointConfig{
		ID:            2,
		Name:          "dashboard",
		Role:          model.RoleSubscriber,
		TopicPatterns: "sub=orders.**",
	}))

	_, err := f.store.CreateTopic(model.TopicConfig{ID: 1, Name: "orders.new", IsActive: true})
	require.NoError(t, err)

	return f
}

func (f *publishFixture) newPublisher(t *testing.T, opts ...PublisherOption) *Publisher {
	t.Helper()

	publisher, err := NewPublisher(append([]PublisherOption{
		WithPublisherRegistry(f.registry),
		WithPublisherStore(f.store),
		WithPublisherBacklog(f.backlog),
		WithPublisherServerIdentity("server1", 1),
	}, opts...)...)
	require.NoError(t, err)

	return publisher
}

func TestNewPublisher_RequiresDependencies(t *testing.T) {
	_, err := NewPublisher()
	assert.Error(t, err)

	_, err = NewPublisher(WithPublisherRegistry(NewEndpointRegistry(nil)))
	assert.Error(t, err)
}

func TestPublisher_PublishNonGD(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	f.store.AddSubscription(&model.Subscription{
		SubKey: "thk.a", TopicName: "orders.new", SubPatternMatched: "sub=orders.**",
	})

	result, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Data:       "hello",
	})
	require.NoError(t, err)

	assert.False(t, result.HasGD)
	assert.NotEmpty(t, result.PubMsgID)
	assert.NotEmpty(t, result.CID)
	assert.Equal(t, "pub=orders.**", result.MatchedPattern)
	assert.Equal(t, 1, result.Subscribers)

	// The message landed in the backlog for the subscriber.
	assert.True(t, f.backlog.HasMessagesBySubKey("thk.a"))

	events := f.backlog.GetDeleteMessagesBySubKeys(1, []string{"thk.a"})
	require.Len(t, events, 1)
	assert.Equal(t, result.PubMsgID, events[0].PubMsgID)
	assert.Equal(t, "server1", events[0].ServerName)

	pattern, ok := events[0].SubPatternMatched.Pop("thk.a")
	assert.True(t, ok)
	assert.Equal(t, "sub=orders.**", pattern)

	// And the topic was marked dirty.
	topic, err := f.store.GetTopicByName("orders.new")
	require.NoError(t, err)
	assert.True(t, topic.SyncHasNonGDMsg)
	assert.False(t, topic.SyncHasGDMsg)
}

func TestPublisher_PublishBySecurityID(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	result, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		SecurityID: 100,
		Data:       "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.PubMsgID)
}

func TestPublisher_Defaults(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	f.store.AddSubscription(&model.Subscription{SubKey: "thk.a", TopicName: "orders.new"})

	result, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Data:       "hello",
	})
	require.NoError(t, err)

	events := f.backlog.GetDeleteMessagesBySubKeys(1, []string{"thk.a"})
	require.Len(t, events, 1)
	assert.Equal(t, model.PriorityDefault, events[0].Priority)
	assert.Equal(t, model.DefaultMimeType, events[0].MimeType)
	assert.Equal(t, DefaultExpiration, events[0].Expiration)
	assert.Greater(t, result.ExpirationTime, result.PubTime)
}

func TestPublisher_PriorityClamped(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	f.store.AddSubscription(&model.Subscription{SubKey: "thk.a", TopicName: "orders.new"})

	_, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Priority:   model.PriorityMax,
	})
	require.NoError(t, err)

	events := f.backlog.GetDeleteMessagesBySubKeys(1, []string{"thk.a"})
	require.Len(t, events, 1)
	assert.Equal(t, model.PriorityMax, events[0].Priority)

	_, err = publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Priority:   99,
	})
	assert.Error(t, err)
}

func TestPublisher_PermissionDenied(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	// Endpoint 2 is subscriber-only.
	_, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 2,
		Data:       "hello",
	})
	require.Error(t, err)

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrCodeForbidden, engineErr.Code)
}

func TestPublisher_UnknownTopic(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	_, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.unknown",
		EndpointID: 1,
	})
	assert.True(t, IsNotFound(err))
}

func TestPublisher_InactiveTopic(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	_, err := f.store.CreateTopic(model.TopicConfig{ID: 2, Name: "orders.paused", IsActive: false})
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.paused",
		EndpointID: 1,
	})
	assert.Error(t, err)
}

func TestPublisher_MissingIdentity(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	_, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName: "orders.new",
	})
	assert.Error(t, err)
}

func TestPublisher_GDWithoutRepository(t *testing.T) {
	f := newPublishFixture(t)
	publisher := f.newPublisher(t)

	hasGD := true
	_, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		HasGD:      &hasGD,
	})
	require.Error(t, err)

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrCodeConfiguration, engineErr.Code)
}

type capturingMessageRepo struct {
	row     *model.GDMessageRow
	subKeys []string
}

func (r *capturingMessageRepo) Insert(_ context.Context, row *model.GDMessageRow, subKeys []string) error {
	r.row = row
	r.subKeys = subKeys
	return nil
}

func (r *capturingMessageRepo) FindBySubKeys(context.Context, int, []string) ([]model.GDMessageRow, error) {
	return nil, nil
}

func (r *capturingMessageRepo) DeleteExpired(context.Context, float64) (int64, error) {
	return 0, nil
}

func TestPublisher_PublishGD(t *testing.T) {
	f := newPublishFixture(t)
	repo := &capturingMessageRepo{}
	publisher := f.newPublisher(t, WithPublisherMessageRepository(repo))

	f.store.AddSubscription(&model.Subscription{SubKey: "thk.a", TopicName: "orders.new"})

	hasGD := true
	result, err := publisher.Publish(context.Background(), &PublishRequest{
		TopicName:  "orders.new",
		EndpointID: 1,
		Data:       map[string]int{"orderId": 123},
		HasGD:      &hasGD,
	})
	require.NoError(t, err)
	assert.True(t, result.HasGD)

	require.NotNil(t, repo.row)
	assert.Equal(t, result.PubMsgID, repo.row.PubMsgID)
	assert.Equal(t, 1, repo.row.TopicID)
	assert.JSONEq(t, `{"orderId": 123}`, repo.row.Data)
	assert.Equal(t, []string{"thk.a"}, repo.subKeys)

	// GD messages do not enter the in-RAM backlog.
	assert.False(t, f.backlog.HasMessagesBySubKey("thk.a"))

	topic, err := f.store.GetTopicByName("orders.new")
	require.NoError(t, err)
	assert.True(t, topic.SyncHasGDMsg)
	assert.False(t, topic.SyncHasNonGDMsg)
	assert.Equal(t, result.PubTime, topic.GDPubTimeMax)
}
