package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointConfig_TableName(t *testing.T) {
	config := EndpointConfig{}
	assert.Equal(t, "topichub_endpoint", config.TableName())
}

func TestNewEndpoint(t *testing.T) {
	endpoint, err := NewEndpoint(EndpointConfig{
		ID:            1,
		Name:          "order-service",
		Role:          RolePublisherSubscriber,
		TopicPatterns: "pub=orders.**\nsub=orders.confirmed.*",
	})
	require.NoError(t, err)

	require.Len(t, endpoint.PubTopicPatterns, 1)
	require.Len(t, endpoint.SubTopicPatterns, 1)
	assert.Equal(t, "pub=orders.**", endpoint.PubTopicPatterns[0].Orig)
	assert.True(t, endpoint.PubTopicPatterns[0].Matcher.MatchString("orders.new.priority"))
	assert.True(t, endpoint.SubTopicPatterns[0].Matcher.MatchString("orders.confirmed.eu"))
	assert.False(t, endpoint.SubTopicPatterns[0].Matcher.MatchString("orders.confirmed.eu.north"))
}

func TestNewEndpoint_InvalidRole(t *testing.T) {
	_, err := NewEndpoint(EndpointConfig{ID: 1, Role: "admin"})
	assert.Error(t, err)
}

func TestNewEndpoint_MalformedPatternLine(t *testing.T) {
	_, err := NewEndpoint(EndpointConfig{
		ID:            1,
		Role:          RolePublisher,
		TopicPatterns: "orders.**",
	})
	assert.Error(t, err)
}

func TestNewEndpoint_BlankLinesSkipped(t *testing.T) {
	endpoint, err := NewEndpoint(EndpointConfig{
		ID:            1,
		Role:          RolePublisher,
		TopicPatterns: "pub=orders.**\n\n  \npub=invoices.*",
	})
	require.NoError(t, err)
	assert.Len(t, endpoint.PubTopicPatterns, 2)
}

func TestEndpoint_Roles(t *testing.T) {
	pub, err := NewEndpoint(EndpointConfig{ID: 1, Role: RolePublisher})
	require.NoError(t, err)
	assert.True(t, pub.CanPublish())
	assert.False(t, pub.CanSubscribe())

	sub, err := NewEndpoint(EndpointConfig{ID: 2, Role: RoleSubscriber})
	require.NoError(t, err)
	assert.False(t, sub.CanPublish())
	assert.True(t, sub.CanSubscribe())

	both, err := NewEndpoint(EndpointConfig{ID: 3, Role: RolePublisherSubscriber})
	require.NoError(t, err)
	assert.True(t, both.CanPublish())
	assert.True(t, both.CanSubscribe())
}

func TestSubscription_TableName(t *testing.T) {
	sub := Subscription{}
	assert.Equal(t, "topichub_subscription", sub.TableName())
}

func TestSubscription_IsWSX(t *testing.T) {
	assert.False(t, (&Subscription{}).IsWSX())
	assert.True(t, (&Subscription{WSChannelID: 5}).IsWSX())
}
