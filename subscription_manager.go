package topichub

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/topichub/model"
)

// SubscribeRequest describes one subscription attempt. The caller identifies
// itself through exactly one of EndpointID, SecurityID or WSChannelID.
type SubscribeRequest struct {
	TopicName string

	EndpointID  int
	SecurityID  int
	WSChannelID int

	EndpointType   string
	DeliveryMethod string
	ExtClientID    string

	// ServerName and ServerPID, when set, register the caller's server as
	// the delivery server for the new sub-key right away.
	ServerName string
	ServerPID  int
}

// Validate checks the request before any work is done on it.
func (r SubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required),
		validation.Field(&r.DeliveryMethod, validation.In(
			"", model.DeliveryMethodPull, model.DeliveryMethodNotify, model.DeliveryMethodWebSocket)),
	)
}

// SubscriptionManager creates and removes subscriptions, keeping the topic
// store and the in-RAM backlog consistent with each other.
//
// Thread safety: safe for concurrent use.
type SubscriptionManager struct {
	registry *EndpointRegistry
	store    *TopicStore
	backlog  *Backlog
	logger   Logger
}

// NewSubscriptionManager creates a manager over the given registry, store
// and backlog, all of which are required. A nil logger means no logging.
func NewSubscriptionManager(registry *EndpointRegistry, store *TopicStore, backlog *Backlog, logger Logger) (*SubscriptionManager, error) {
	if registry == nil {
		return nil, NewError(ErrCodeConfiguration, "registry cannot be nil")
	}
	if store == nil {
		return nil, NewError(ErrCodeConfiguration, "store cannot be nil")
	}
	if backlog == nil {
		return nil, NewError(ErrCodeConfiguration, "backlog cannot be nil")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &SubscriptionManager{
		registry: registry,
		store:    store,
		backlog:  backlog,
		logger:   logger,
	}, nil
}

func (m *SubscriptionManager) resolveEndpointID(req *SubscribeRequest) (int, error) {
	if req.EndpointID != 0 {
		return req.EndpointID, nil
	}
	if req.SecurityID != 0 {
		return m.registry.GetIDBySecID(req.SecurityID)
	}
	if req.WSChannelID != 0 {
		endpointID, ok := m.registry.GetIDByWSChannelID(req.WSChannelID)
		if !ok {
			return 0, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for ws channel id `%d`", req.WSChannelID))
		}
		return endpointID, nil
	}
	return 0, NewError(ErrCodeValidation, "one of endpoint_id, security_id or ws_channel_id is required")
}

// Subscribe authorizes the caller against the topic, mints a sub-key and
// records the subscription. Denied permission comes back as a FORBIDDEN
// error.
func (m *SubscriptionManager) Subscribe(req *SubscribeRequest) (*model.Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid subscribe request", err)
	}

	endpointID, err := m.resolveEndpointID(req)
	if err != nil {
		return nil, err
	}

	pattern, allowed, err := m.registry.IsAllowedSubTopicByEndpointID(req.TopicName, endpointID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, NewError(ErrCodeForbidden,
			fmt.Sprintf("endpoint `%d` may not subscribe to `%s`", endpointID, req.TopicName))
	}

	topic, err := m.store.GetTopicByName(req.TopicName)
	if err != nil {
		return nil, err
	}

	endpointType := req.EndpointType
	if endpointType == "" {
		endpoint, err := m.registry.GetByID(endpointID)
		if err != nil {
			return nil, err
		}
		endpointType = endpoint.EndpointType
	}

	deliveryMethod := req.DeliveryMethod
	if deliveryMethod == "" {
		deliveryMethod = model.DeliveryMethodPull
	}

	sub := &model.Subscription{
		CreationTime:      model.UTCNow(),
		SubKey:            NewSubKey(endpointType, req.ExtClientID),
		EndpointID:        endpointID,
		TopicID:           topic.ID,
		TopicName:         topic.Name,
		SubPatternMatched: pattern,
		DeliveryMethod:    deliveryMethod,
		HasGD:             topic.HasGD,
		ExtClientID:       req.ExtClientID,
		WSChannelID:       req.WSChannelID,
	}

	m.store.AddSubscription(sub)

	if req.ServerName != "" {
		m.store.SetSubKeyServer(&model.SubKeyServer{
			SubKey:       sub.SubKey,
			ServerName:   req.ServerName,
			ServerPID:    req.ServerPID,
			EndpointType: endpointType,
			ExtClientID:  req.ExtClientID,
			CreationTime: sub.CreationTime,
		})
	}

	m.logger.Infof("Subscribed `%s` to `%s` (endpoint:%d method:%s)",
		sub.SubKey, topic.Name, endpointID, deliveryMethod)

	return sub, nil
}

// Unsubscribe removes a subscription along with its delivery-server entry
// and any messages still queued for it in the backlog.
func (m *SubscriptionManager) Unsubscribe(topicName, subKey string) error {
	topic, err := m.store.GetTopicByName(topicName)
	if err != nil {
		return err
	}

	m.store.RemoveSubscription(topicName, subKey)
	m.store.RemoveSubKeyServer(subKey)
	m.backlog.Unsubscribe(topic.ID, []string{subKey})

	m.logger.Infof("Unsubscribed `%s` from `%s`", subKey, topicName)

	return nil
}
