package model

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Endpoint roles. The role decides which permission list is consulted:
// publish checks need RolePublisher or RolePublisherSubscriber, subscribe
// checks need RoleSubscriber or RolePublisherSubscriber.
const (
	RolePublisher           = "pub"
	RoleSubscriber          = "sub"
	RolePublisherSubscriber = "pub-sub"
)

// TopicPattern is a single compiled permission pattern along with its
// original source line, which is what authorization checks report back.
type TopicPattern struct {
	Orig    string
	Matcher *regexp.Regexp
}

// EndpointConfig is the administrative definition of an endpoint.
//
// At most one of SecurityID, WSChannelID and ServiceID identifies the
// endpoint for reverse lookups; they are alternate keys, not separate
// entities.
type EndpointConfig struct {
	ID           int    `db:"id"`
	Name         string `db:"name"`
	EndpointType string `db:"endpoint_type"`
	Role         string `db:"role"`
	IsActive     bool   `db:"is_active"`
	IsInternal   bool   `db:"is_internal"`
	SecurityID   int    `db:"security_id"`
	WSChannelID  int    `db:"ws_channel_id"`
	ServiceID    int    `db:"service_id"`

	// Newline-separated permission lines, each prefixed with pub= or sub=,
	// e.g. "pub=orders.**\nsub=orders.confirmed.*".
	TopicPatterns string `db:"topic_patterns"`
}

// TableName returns the database table name for EndpointConfig.
func (c EndpointConfig) TableName() string {
	return tablePrefix + "endpoint"
}

// Validate checks the config before an endpoint is built from it.
func (c EndpointConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Role, validation.Required,
			validation.In(RolePublisher, RoleSubscriber, RolePublisherSubscriber)),
	)
}

// Endpoint is a publisher/subscriber party with compiled permission lists.
type Endpoint struct {
	ID           int
	Name         string
	EndpointType string
	Role         string
	IsActive     bool
	IsInternal   bool

	TopicPatterns string

	// Ordered pattern lists, consulted first-match-first by authorization.
	PubTopicPatterns []TopicPattern
	SubTopicPatterns []TopicPattern
}

// NewEndpoint builds an Endpoint from its config, compiling the permission
// lines. Malformed lines are rejected rather than skipped.
func NewEndpoint(config EndpointConfig) (*Endpoint, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Endpoint{
		ID:            config.ID,
		Name:          config.Name,
		EndpointType:  config.EndpointType,
		Role:          config.Role,
		IsActive:      config.IsActive,
		IsInternal:    config.IsInternal,
		TopicPatterns: config.TopicPatterns,
	}

	if err := e.setUpPatterns(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Endpoint) setUpPatterns() error {
	for _, line := range strings.Split(e.TopicPatterns, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		isPub := strings.HasPrefix(line, "pub=")
		isSub := strings.HasPrefix(line, "sub=")
		if !isPub && !isSub {
			return fmt.Errorf("topic pattern line %q for endpoint `%s` has no pub=/sub= prefix", line, e.Name)
		}

		matcher, err := CompileTopicPattern(line[len("pub="):])
		if err != nil {
			return fmt.Errorf("endpoint `%s`: %w", e.Name, err)
		}

		pattern := TopicPattern{Orig: line, Matcher: matcher}
		if isPub {
			e.PubTopicPatterns = append(e.PubTopicPatterns, pattern)
		} else {
			e.SubTopicPatterns = append(e.SubTopicPatterns, pattern)
		}
	}

	return nil
}

// CanPublish reports whether the endpoint's role permits publishing.
func (e *Endpoint) CanPublish() bool {
	return e.Role == RolePublisher || e.Role == RolePublisherSubscriber
}

// CanSubscribe reports whether the endpoint's role permits subscribing.
func (e *Endpoint) CanSubscribe() bool {
	return e.Role == RoleSubscriber || e.Role == RolePublisherSubscriber
}
