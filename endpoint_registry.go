package topichub

import (
	"fmt"
	"sync"
	"time"

	"github.com/coregx/topichub/model"
)

// How long GetIDByWSChannelID waits for the reverse index entry to appear.
// WebSocket channel registration may race with first use, so this is the one
// intentionally blocking lookup in the registry.
const wsChannelWaitTimeout = 3 * time.Second

const wsChannelWaitInterval = 25 * time.Millisecond

// EndpointRegistry resolves identities to endpoints and answers whether an
// endpoint may publish or subscribe to a topic.
//
// Endpoints are reachable through at most one of security definition id,
// WebSocket channel id or service id - alternate lookup keys into the same
// endpoint, maintained as three reverse indices.
//
// Thread safety: safe for concurrent use.
type EndpointRegistry struct {
	mu sync.RWMutex

	endpoints map[int]*model.Endpoint

	secIDToEndpointID       map[int]int
	wsChannelIDToEndpointID map[int]int
	serviceIDToEndpointID   map[int]int

	wsWaitTimeout time.Duration
	logger        Logger
}

// NewEndpointRegistry creates an empty registry. A nil logger means no logging.
func NewEndpointRegistry(logger Logger) *EndpointRegistry {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &EndpointRegistry{
		endpoints:               map[int]*model.Endpoint{},
		secIDToEndpointID:       map[int]int{},
		wsChannelIDToEndpointID: map[int]int{},
		serviceIDToEndpointID:   map[int]int{},
		wsWaitTimeout:           wsChannelWaitTimeout,
		logger:                  logger,
	}
}

// Create builds an endpoint from its config and populates the reverse
// indices for whichever alternate keys the config carries.
func (r *EndpointRegistry) Create(config model.EndpointConfig) error {
	endpoint, err := model.NewEndpoint(config)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid endpoint config", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[config.ID] = endpoint

	if config.SecurityID != 0 {
		r.secIDToEndpointID[config.SecurityID] = config.ID
	}
	if config.WSChannelID != 0 {
		r.wsChannelIDToEndpointID[config.WSChannelID] = config.ID
	}
	if config.ServiceID != 0 {
		r.serviceIDToEndpointID[config.ServiceID] = config.ID
	}

	r.logger.Infof("Created pub/sub endpoint `%s` (id:%d role:%s)", endpoint.Name, endpoint.ID, endpoint.Role)

	return nil
}

// Delete removes an endpoint and scrubs all reverse-index entries pointing
// to it. Endpoint counts are administrative-scale so a linear scan is fine.
func (r *EndpointRegistry) Delete(endpointID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.endpoints, endpointID)

	for key, value := range r.secIDToEndpointID {
		if value == endpointID {
			delete(r.secIDToEndpointID, key)
			break
		}
	}
	for key, value := range r.wsChannelIDToEndpointID {
		if value == endpointID {
			delete(r.wsChannelIDToEndpointID, key)
			break
		}
	}
	for key, value := range r.serviceIDToEndpointID {
		if value == endpointID {
			delete(r.serviceIDToEndpointID, key)
			break
		}
	}
}

// GetByID returns the endpoint with the given id.
func (r *EndpointRegistry) GetByID(endpointID int) (*model.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getByIDLocked(endpointID)
}

func (r *EndpointRegistry) getByIDLocked(endpointID int) (*model.Endpoint, error) {
	endpoint, ok := r.endpoints[endpointID]
	if !ok {
		return nil, NewError(ErrCodeNotFound, fmt.Sprintf("no such endpoint id `%d`", endpointID))
	}
	return endpoint, nil
}

// GetByName returns the endpoint with the given name, scanning linearly.
func (r *EndpointRegistry) GetByName(name string) (*model.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, endpoint := range r.endpoints {
		if endpoint.Name == name {
			return endpoint, nil
		}
	}
	return nil, NewError(ErrCodeNotFound, fmt.Sprintf("no such endpoint name `%s`", name))
}

// GetByWSChannelID returns the endpoint reachable through a WebSocket channel.
func (r *EndpointRegistry) GetByWSChannelID(wsChannelID int) (*model.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpointID, ok := r.wsChannelIDToEndpointID[wsChannelID]
	if !ok {
		return nil, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for ws channel id `%d`", wsChannelID))
	}
	return r.getByIDLocked(endpointID)
}

// GetIDBySecID returns the endpoint id for a security definition id.
func (r *EndpointRegistry) GetIDBySecID(secID int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpointID, ok := r.secIDToEndpointID[secID]
	if !ok {
		return 0, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for security id `%d`", secID))
	}
	return endpointID, nil
}

// GetIDByServiceID returns the endpoint id for a service id.
func (r *EndpointRegistry) GetIDByServiceID(serviceID int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpointID, ok := r.serviceIDToEndpointID[serviceID]
	if !ok {
		return 0, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for service id `%d`", serviceID))
	}
	return endpointID, nil
}

// GetIDByWSChannelID returns the endpoint id for a WebSocket channel id,
// waiting a bounded time for the index entry to appear because channel
// registration may race with first use. On expiry it reports not-found
// rather than failing, since callers use it in polling contexts.
func (r *EndpointRegistry) GetIDByWSChannelID(wsChannelID int) (int, bool) {
	deadline := time.Now().Add(r.wsWaitTimeout)

	for {
		r.mu.RLock()
		endpointID, ok := r.wsChannelIDToEndpointID[wsChannelID]
		r.mu.RUnlock()

		if ok {
			return endpointID, true
		}
		if time.Now().After(deadline) {
			return 0, false
		}
		time.Sleep(wsChannelWaitInterval)
	}
}

// GetCount returns the number of registered endpoints.
func (r *EndpointRegistry) GetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// isAllowed decides whether an endpoint, a security definition or a WebSocket
// channel may publish or subscribe to the topic. A wrong role or no matching
// pattern yields (_, false, nil) - denial is not an error.
func (r *EndpointRegistry) isAllowed(name string, isPub bool, securityID, wsChannelID, endpointID int) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if endpointID == 0 {
		if (securityID == 0) == (wsChannelID == 0) {
			return "", false, NewError(ErrCodeValidation, fmt.Sprintf(
				"exactly one of security_id or ws_channel_id must be given instead of `%d` `%d`",
				securityID, wsChannelID))
		}

		var source map[int]int
		var id int
		if securityID != 0 {
			source, id = r.secIDToEndpointID, securityID
		} else {
			source, id = r.wsChannelIDToEndpointID, wsChannelID
		}

		var ok bool
		endpointID, ok = source[id]
		if !ok {
			return "", false, NewError(ErrCodeNotFound, fmt.Sprintf("no endpoint for id `%d`", id))
		}
	}

	endpoint, err := r.getByIDLocked(endpointID)
	if err != nil {
		return "", false, err
	}

	if isPub {
		if !endpoint.CanPublish() {
			return "", false, nil
		}
	} else {
		if !endpoint.CanSubscribe() {
			return "", false, nil
		}
	}

	patterns := endpoint.SubTopicPatterns
	if isPub {
		patterns = endpoint.PubTopicPatterns
	}

	for _, pattern := range patterns {
		if pattern.Matcher.MatchString(name) {
			return pattern.Orig, true, nil
		}
	}

	return "", false, nil
}

// IsAllowedPubTopic checks publish permission for a security definition or
// WebSocket channel; exactly one of the two ids must be non-zero.
// It returns the original form of the first matching pattern.
func (r *EndpointRegistry) IsAllowedPubTopic(name string, securityID, wsChannelID int) (string, bool, error) {
	return r.isAllowed(name, true, securityID, wsChannelID, 0)
}

// IsAllowedPubTopicByEndpointID checks publish permission for an endpoint id.
func (r *EndpointRegistry) IsAllowedPubTopicByEndpointID(name string, endpointID int) (string, bool, error) {
	return r.isAllowed(name, true, 0, 0, endpointID)
}

// IsAllowedSubTopic checks subscribe permission for a security definition or
// WebSocket channel; exactly one of the two ids must be non-zero.
func (r *EndpointRegistry) IsAllowedSubTopic(name string, securityID, wsChannelID int) (string, bool, error) {
	return r.isAllowed(name, false, securityID, wsChannelID, 0)
}

// IsAllowedSubTopicByEndpointID checks subscribe permission for an endpoint id.
func (r *EndpointRegistry) IsAllowedSubTopicByEndpointID(name string, endpointID int) (string, bool, error) {
	return r.isAllowed(name, false, 0, 0, endpointID)
}
