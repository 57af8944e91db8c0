package model

import "sync"

// PatternMatches is the set of subscribe-time patterns matched for a single
// publish event, keyed by sub-key. The same event object is inspected by
// multiple subscriber tasks concurrently and each must claim its own entry
// exactly once, hence Pop rather than a plain read.
type PatternMatches struct {
	mu      sync.Mutex
	matches map[string]string
}

// NewPatternMatches wraps a sub-key to matched-pattern map.
// The input map is owned by the returned object afterwards.
func NewPatternMatches(matches map[string]string) *PatternMatches {
	if matches == nil {
		matches = map[string]string{}
	}
	return &PatternMatches{matches: matches}
}

// Pop removes and returns the matched pattern for the given sub-key.
// The second return value is false if the entry was already consumed
// or never existed.
func (p *PatternMatches) Pop(subKey string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pattern, ok := p.matches[subKey]
	if ok {
		delete(p.matches, subKey)
	}
	return pattern, ok
}

// Len returns the number of unconsumed entries.
func (p *PatternMatches) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.matches)
}

// NonGDEvent is a transient publish event held in the in-RAM backlog until
// the sync trigger hands it to delivery tasks. One event is shared across
// all subscribers of the publication.
type NonGDEvent struct {
	PubMsgID          string
	PubCorrelID       string
	InReplyTo         string
	ExtClientID       string
	GroupID           string
	PositionInGroup   int
	PubTime           float64
	ExtPubTime        float64
	Data              any
	MimeType          string
	Priority          int
	Expiration        int64
	ExpirationTime    float64
	TopicID           int
	TopicName         string
	Size              int
	PublishedByID     int
	PubPatternMatched string
	ReplyToSK         []string
	DeliverToSK       []string
	UserCtx           any
	MsgCtx            map[string]any

	// Originating server, attached when the event enters the backlog.
	ServerName string
	ServerPID  int

	// Shared across subscribers; consumed per sub-key by NewNonGDMessage.
	SubPatternMatched *PatternMatches
}
