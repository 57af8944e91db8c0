package topichub

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/topichub/model"
)

// Operations a client can be evaluated for.
const (
	OpPublish   = "publish"
	OpSubscribe = "subscribe"
)

// Access types a permission entry can grant.
const (
	AccessPublisher           = "publisher"
	AccessSubscriber          = "subscriber"
	AccessPublisherSubscriber = "publisher-subscriber"
)

// Permission grants one access type for one topic pattern.
type Permission struct {
	Pattern string
	Access  string
}

// Validate checks a permission entry before it is registered.
func (p Permission) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Pattern, validation.Required),
		validation.Field(&p.Access, validation.Required,
			validation.In(AccessPublisher, AccessSubscriber, AccessPublisherSubscriber)),
	)
}

// EvaluationResult is the outcome of a single permission check.
type EvaluationResult struct {
	IsOK           bool
	ClientID       string
	Topic          string
	Operation      string
	MatchedPattern string
	Reason         string
}

type patternInfo struct {
	pattern      string
	regex        *regexp.Regexp
	hasWildcards bool
}

type clientPermissions struct {
	pubPatterns []patternInfo
	subPatterns []patternInfo
}

// PatternMatcher decides whether a client may publish or subscribe to a
// topic, based on per-client ordered permission lists.
//
// Patterns for a client are evaluated in the order they were registered and
// the first one whose access type fits the operation and whose glob matches
// the topic wins. This is first-match, not most-specific-match.
//
// Thread safety: safe for concurrent use.
type PatternMatcher struct {
	mu      sync.RWMutex
	clients map[string]*clientPermissions
	cache   map[string]*regexp.Regexp
}

// NewPatternMatcher creates an empty matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{
		clients: map[string]*clientPermissions{},
		cache:   map[string]*regexp.Regexp{},
	}
}

// compilePattern compiles a topic pattern, with caching.
// Must be called with the write lock held.
func (pm *PatternMatcher) compilePattern(pattern string) (*regexp.Regexp, error) {
	if compiled, ok := pm.cache[pattern]; ok {
		return compiled, nil
	}

	compiled, err := model.CompileTopicPattern(pattern)
	if err != nil {
		return nil, err
	}

	pm.cache[pattern] = compiled
	return compiled, nil
}

func (pm *PatternMatcher) buildPatternInfos(permissions []Permission) (pub, sub []patternInfo, err error) {
	for _, perm := range permissions {
		if err := perm.Validate(); err != nil {
			return nil, nil, NewErrorWithCause(ErrCodeValidation,
				fmt.Sprintf("invalid permission entry %q", perm.Pattern), err)
		}

		regex, err := pm.compilePattern(perm.Pattern)
		if err != nil {
			return nil, nil, NewErrorWithCause(ErrCodeValidation,
				fmt.Sprintf("invalid permission pattern %q", perm.Pattern), err)
		}

		info := patternInfo{
			pattern:      strings.ToLower(perm.Pattern),
			regex:        regex,
			hasWildcards: strings.Contains(perm.Pattern, "*"),
		}

		switch perm.Access {
		case AccessPublisher:
			pub = append(pub, info)
		case AccessSubscriber:
			sub = append(sub, info)
		case AccessPublisherSubscriber:
			pub = append(pub, info)
			sub = append(sub, info)
		}
	}
	return pub, sub, nil
}

// AddClient registers permissions for a client. Repeated calls accumulate
// permissions for the same client rather than replacing them; use
// SetPermissions to replace. Malformed entries are rejected as a whole
// and leave the client unchanged.
func (pm *PatternMatcher) AddClient(clientID string, permissions []Permission) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pub, sub, err := pm.buildPatternInfos(permissions)
	if err != nil {
		return err
	}

	perms, ok := pm.clients[clientID]
	if !ok {
		perms = &clientPermissions{}
		pm.clients[clientID] = perms
	}

	perms.pubPatterns = append(perms.pubPatterns, pub...)
	perms.subPatterns = append(perms.subPatterns, sub...)

	return nil
}

// SetPermissions replaces all permissions for a client.
func (pm *PatternMatcher) SetPermissions(clientID string, permissions []Permission) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pub, sub, err := pm.buildPatternInfos(permissions)
	if err != nil {
		return err
	}

	pm.clients[clientID] = &clientPermissions{pubPatterns: pub, subPatterns: sub}
	return nil
}

// RemoveClient removes a client and all its permissions.
func (pm *PatternMatcher) RemoveClient(clientID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.clients, clientID)
}

// Evaluate checks whether a client may perform an operation on a topic.
//
// An unknown client, an unknown operation or the absence of a matching
// pattern all yield a result with IsOK false - denial is an expected,
// frequent outcome, never an error.
func (pm *PatternMatcher) Evaluate(clientID, topic, operation string) EvaluationResult {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := EvaluationResult{
		ClientID:  clientID,
		Topic:     topic,
		Operation: operation,
	}

	perms, ok := pm.clients[clientID]
	if !ok {
		result.Reason = "Client not found"
		return result
	}

	var patternList []patternInfo
	switch operation {
	case OpPublish:
		patternList = perms.pubPatterns
	case OpSubscribe:
		patternList = perms.subPatterns
	default:
		result.Reason = fmt.Sprintf("Invalid operation: %s", operation)
		return result
	}

	topicLower := strings.ToLower(topic)

	for _, info := range patternList {
		if info.hasWildcards {
			if info.regex.MatchString(topic) {
				result.IsOK = true
				result.MatchedPattern = info.pattern
				return result
			}
		} else if topicLower == info.pattern {
			result.IsOK = true
			result.MatchedPattern = info.pattern
			return result
		}
	}

	result.Reason = "No matching pattern found"
	return result
}

// GetClientCount returns the number of registered clients.
func (pm *PatternMatcher) GetClientCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.clients)
}

// GetCacheSize returns the number of cached compiled patterns.
func (pm *PatternMatcher) GetCacheSize() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.cache)
}

// ClearCache empties the compiled pattern cache and recompiles the patterns
// of all registered clients.
func (pm *PatternMatcher) ClearCache() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.cache = map[string]*regexp.Regexp{}

	for _, perms := range pm.clients {
		for i := range perms.pubPatterns {
			if regex, err := pm.compilePattern(perms.pubPatterns[i].pattern); err == nil {
				perms.pubPatterns[i].regex = regex
			}
		}
		for i := range perms.subPatterns {
			if regex, err := pm.compilePattern(perms.subPatterns[i].pattern); err == nil {
				perms.subPatterns[i].regex = regex
			}
		}
	}
}
