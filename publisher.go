package topichub

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/topichub/metrics"
	"github.com/coregx/topichub/model"
)

// DefaultExpiration is applied when a publication does not set one. It is
// far enough in the future to mean "never expires" in practice.
const DefaultExpiration int64 = math.MaxInt32

// PublishRequest describes one publication.
//
// The caller identifies itself through exactly one of EndpointID, SecurityID
// or WSChannelID. Everything else is optional; unset fields get engine
// defaults.
type PublishRequest struct {
	TopicName string
	Data      interface{}

	EndpointID  int
	SecurityID  int
	WSChannelID int

	MimeType   string
	Priority   int
	Expiration int64

	CorrelID        string
	InReplyTo       string
	ExtClientID     string
	GroupID         string
	PositionInGroup int
	ExtPubTime      float64

	// HasGD overrides the topic's persistence default when non-nil.
	HasGD *bool

	ReplyToSK   []string
	DeliverToSK []string

	UserCtx interface{}
	MsgCtx  map[string]interface{}
}

// Validate checks the request before any work is done on it.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required),
		validation.Field(&r.Priority, validation.Min(0), validation.Max(model.PriorityMax)),
	)
}

// PublishResult is what a successful publication returns.
type PublishResult struct {
	PubMsgID       string
	CID            string
	PubTime        float64
	ExpirationTime float64
	HasGD          bool
	MatchedPattern string
	Subscribers    int
}

// Publisher accepts messages into topics. GD messages go to the message
// repository, non-GD messages to the in-RAM backlog; either way the topic
// is marked dirty so the sync trigger picks it up.
//
// Thread safety: safe for concurrent use.
type Publisher struct {
	registry    *EndpointRegistry
	store       *TopicStore
	backlog     *Backlog
	messageRepo MessageRepository

	serverName string
	serverPID  int

	logger Logger
}

// PublisherOption configures a Publisher during construction.
type PublisherOption func(*Publisher) error

// WithPublisherRegistry sets the endpoint registry. Required.
func WithPublisherRegistry(registry *EndpointRegistry) PublisherOption {
	return func(p *Publisher) error {
		if registry == nil {
			return NewError(ErrCodeConfiguration, "registry cannot be nil")
		}
		p.registry = registry
		return nil
	}
}

// WithPublisherStore sets the topic store. Required.
func WithPublisherStore(store *TopicStore) PublisherOption {
	return func(p *Publisher) error {
		if store == nil {
			return NewError(ErrCodeConfiguration, "store cannot be nil")
		}
		p.store = store
		return nil
	}
}

// WithPublisherBacklog sets the in-RAM backlog. Required.
func WithPublisherBacklog(backlog *Backlog) PublisherOption {
	return func(p *Publisher) error {
		if backlog == nil {
			return NewError(ErrCodeConfiguration, "backlog cannot be nil")
		}
		p.backlog = backlog
		return nil
	}
}

// WithPublisherMessageRepository sets the repository GD messages are written
// to. Without one, GD publications are rejected.
func WithPublisherMessageRepository(repo MessageRepository) PublisherOption {
	return func(p *Publisher) error {
		p.messageRepo = repo
		return nil
	}
}

// WithPublisherServerIdentity sets the name and PID stamped on messages.
func WithPublisherServerIdentity(serverName string, serverPID int) PublisherOption {
	return func(p *Publisher) error {
		p.serverName = serverName
		p.serverPID = serverPID
		return nil
	}
}

// WithPublisherLogger sets the publisher's logger.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return NewError(ErrCodeConfiguration, "logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPublisher creates a publisher from the given options. The registry,
// store and backlog are required.
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		logger: &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "registry is required, use WithPublisherRegistry")
	}
	if p.store == nil {
		return nil, NewError(ErrCodeConfiguration, "store is required, use WithPublisherStore")
	}
	if p.backlog == nil {
		return nil, NewError(ErrCodeConfiguration, "backlog is required, use WithPublisherBacklog")
	}

	return p, nil
}

// resolveEndpointID turns whichever identity the request carries into an
// endpoint id.
func (p *Publisher) resolveEndpointID(req *PublishRequest) (int, error) {
	if req.EndpointID != 0 {
		return req.EndpointID, nil
	}
	if req.SecurityID != 0 {
		return p.registry.GetIDBySecID(req.SecurityID)
	}
	if req.WSChannelID != 0 {
		endpointID, ok := p.registry.GetIDByWSChannelID(req.WSChannelID)
		if !ok {
			return 0, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for ws channel id `%d`", req.WSChannelID))
		}
		return endpointID, nil
	}
	return 0, NewError(ErrCodeValidation, "one of endpoint_id, security_id or ws_channel_id is required")
}

// Publish validates, authorizes and stores one message, then marks the topic
// dirty for the sync trigger. Denied permission comes back as a FORBIDDEN
// error.
func (p *Publisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid publish request", err)
	}

	endpointID, err := p.resolveEndpointID(req)
	if err != nil {
		return nil, err
	}

	pattern, allowed, err := p.registry.IsAllowedPubTopicByEndpointID(req.TopicName, endpointID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.PublishRejected.Inc()
		return nil, NewError(ErrCodeForbidden,
			fmt.Sprintf("endpoint `%d` may not publish to `%s`", endpointID, req.TopicName))
	}

	topic, err := p.store.GetTopicByName(req.TopicName)
	if err != nil {
		return nil, err
	}
	if !topic.IsActive {
		return nil, NewError(ErrCodeForbidden, fmt.Sprintf("topic `%s` is not active", req.TopicName))
	}

	hasGD := topic.HasGD
	if req.HasGD != nil {
		hasGD = *req.HasGD
	}

	pubMsgID := NewMsgID()
	cid := NewCID()
	pubTime := model.UTCNow()

	priority := req.Priority
	if priority == 0 {
		priority = model.PriorityDefault
	} else if priority < model.PriorityMin {
		priority = model.PriorityMin
	} else if priority > model.PriorityMax {
		priority = model.PriorityMax
	}

	expiration := req.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	expirationTime := pubTime + float64(expiration)

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}

	subs, err := p.store.GetSubscriptionsByTopic(req.TopicName)
	if err != nil {
		return nil, err
	}

	subKeys := make([]string, 0, len(subs))
	subPatterns := make(map[string]string, len(subs))
	for _, sub := range subs {
		subKeys = append(subKeys, sub.SubKey)
		subPatterns[sub.SubKey] = sub.SubPatternMatched
	}

	if hasGD {
		if err := p.publishGD(ctx, req, topic, endpointID, pubMsgID, cid, pubTime, expirationTime,
			priority, expiration, mimeType, pattern, subKeys); err != nil {
			return nil, err
		}
		metrics.MessagesPublished.WithLabelValues("gd").Inc()
	} else {
		p.publishNonGD(req, topic, endpointID, pubMsgID, pubTime, expirationTime,
			priority, expiration, mimeType, pattern, cid, subKeys, subPatterns)
		metrics.MessagesPublished.WithLabelValues("non_gd").Inc()
	}

	p.store.MarkPublished(topic.ID, hasGD, !hasGD, pubTime)

	p.logger.Debugf("Published `%s` to `%s` (cid:%s gd:%t subs:%d)",
		pubMsgID, req.TopicName, cid, hasGD, len(subKeys))

	return &PublishResult{
		PubMsgID:       pubMsgID,
		CID:            cid,
		PubTime:        pubTime,
		ExpirationTime: expirationTime,
		HasGD:          hasGD,
		MatchedPattern: pattern,
		Subscribers:    len(subKeys),
	}, nil
}

func (p *Publisher) publishGD(ctx context.Context, req *PublishRequest, topic *model.Topic,
	endpointID int, pubMsgID, cid string, pubTime, expirationTime float64,
	priority int, expiration int64, mimeType, pattern string, subKeys []string) error {

	if p.messageRepo == nil {
		return NewError(ErrCodeConfiguration, "cannot publish a GD message without a message repository")
	}

	data, err := encodeData(req.Data)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "cannot serialize message data", err)
	}

	var msgCtx string
	if req.MsgCtx != nil {
		raw, err := json.Marshal(req.MsgCtx)
		if err != nil {
			return NewErrorWithCause(ErrCodeValidation, "cannot serialize message context", err)
		}
		msgCtx = string(raw)
	}

	var userCtx string
	if req.UserCtx != nil {
		raw, err := json.Marshal(req.UserCtx)
		if err != nil {
			return NewErrorWithCause(ErrCodeValidation, "cannot serialize user context", err)
		}
		userCtx = string(raw)
	}

	row := &model.GDMessageRow{
		PubMsgID:          pubMsgID,
		PubCorrelID:       req.CorrelID,
		InReplyTo:         req.InReplyTo,
		ExtClientID:       req.ExtClientID,
		GroupID:           req.GroupID,
		PositionInGroup:   req.PositionInGroup,
		PubTime:           pubTime,
		ExtPubTime:        req.ExtPubTime,
		Data:              data,
		MimeType:          mimeType,
		Priority:          priority,
		Expiration:        expiration,
		ExpirationTime:    expirationTime,
		TopicID:           topic.ID,
		Size:              len(data),
		PublishedByID:     endpointID,
		PubPatternMatched: pattern,
		UserCtx:           userCtx,
		MsgCtx:            msgCtx,
	}

	if err := p.messageRepo.Insert(ctx, row, subKeys); err != nil {
		return NewErrorWithCause(ErrCodeDatabase,
			fmt.Sprintf("cannot store GD message `%s` (cid:%s)", pubMsgID, cid), err)
	}

	return nil
}

func (p *Publisher) publishNonGD(req *PublishRequest, topic *model.Topic,
	endpointID int, pubMsgID string, pubTime, expirationTime float64,
	priority int, expiration int64, mimeType, pattern, cid string,
	subKeys []string, subPatterns map[string]string) {

	size := 0
	if s, ok := req.Data.(string); ok {
		size = len(s)
	}

	event := &model.NonGDEvent{
		PubMsgID:          pubMsgID,
		PubCorrelID:       req.CorrelID,
		InReplyTo:         req.InReplyTo,
		ExtClientID:       req.ExtClientID,
		GroupID:           req.GroupID,
		PositionInGroup:   req.PositionInGroup,
		PubTime:           pubTime,
		ExtPubTime:        req.ExtPubTime,
		Data:              req.Data,
		MimeType:          mimeType,
		Priority:          priority,
		Expiration:        expiration,
		ExpirationTime:    expirationTime,
		TopicID:           topic.ID,
		TopicName:         topic.Name,
		PublishedByID:     endpointID,
		PubPatternMatched: pattern,
		SubPatternMatched: model.NewPatternMatches(subPatterns),
		Size:              size,
		ServerName:        p.serverName,
		ServerPID:         p.serverPID,
		ReplyToSK:         req.ReplyToSK,
		DeliverToSK:       req.DeliverToSK,
		UserCtx:           req.UserCtx,
		MsgCtx:            req.MsgCtx,
	}

	p.backlog.AddMessages(cid, topic.ID, topic.Name, topic.MaxDepthNonGD, subKeys, []*model.NonGDEvent{event})
}

// encodeData turns arbitrary payload data into its stored string form.
// Strings and byte slices pass through, everything else is JSON.
func encodeData(data interface{}) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
