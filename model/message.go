package model

import (
	"encoding/json"
	"fmt"
)

// Message priorities range from PriorityMin to PriorityMax with PriorityDefault
// assigned when a publisher does not request one explicitly.
const (
	PriorityMin     = 1
	PriorityDefault = 5
	PriorityMax     = 9
)

// MimeTypeInternal marks payloads that the engine itself JSON-encoded on the
// way in. When a message context carries this marker, the payload is decoded
// back into structured data before delivery.
const MimeTypeInternal = "application/vnd.topichub.msg"

// DefaultMimeType is assigned to messages published without an explicit one.
const DefaultMimeType = "text/plain"

// Message is a single deliverable publish event, materialized for one sub-key.
// Messages are read-only once constructed; delivery tasks order them with Less.
type Message struct {
	SubKey          string  `json:"sub_key"`
	PubMsgID        string  `json:"pub_msg_id"`
	PubCorrelID     string  `json:"pub_correl_id"`
	InReplyTo       string  `json:"in_reply_to"`
	ExtClientID     string  `json:"ext_client_id"`
	GroupID         string  `json:"group_id"`
	PositionInGroup int     `json:"position_in_group"`
	PubTime         float64 `json:"pub_time"`
	ExtPubTime      float64 `json:"ext_pub_time"`
	RecvTime        float64 `json:"recv_time"`
	Data            any     `json:"data"`
	MimeType        string  `json:"mime_type"`
	Priority        int     `json:"priority"`
	Expiration      int64   `json:"expiration"`
	ExpirationTime  float64 `json:"expiration_time"`
	HasGD           bool    `json:"has_gd"`
	TopicName       string  `json:"topic_name"`
	Size            int     `json:"size"`
	PublishedByID   int     `json:"published_by_id"`

	// Pattern that matched when the message was published and, for this
	// sub-key, the pattern that matched at subscribe time.
	PubPatternMatched string `json:"pub_pattern_matched"`
	SubPatternMatched string `json:"sub_pattern_matched"`

	DeliveryCount int `json:"delivery_count"`

	// Originating server, set for non-GD messages only. GD messages are
	// server-agnostic because any server can read them back from SQL.
	ServerName string `json:"server_name,omitempty"`
	ServerPID  int    `json:"server_pid,omitempty"`

	ReplyToSK   []string `json:"reply_to_sk,omitempty"`
	DeliverToSK []string `json:"deliver_to_sk,omitempty"`

	UserCtx any            `json:"user_ctx,omitempty"`
	MsgCtx  map[string]any `json:"msg_ctx,omitempty"`

	// GD messages carry the ID of their endpoint queue row.
	EndpMsgQueueID int64 `json:"endp_msg_queue_id,omitempty"`

	// ISO-8601 mirrors of the float timestamps, derived by AddISOTimes.
	PubTimeISO        string `json:"pub_time_iso"`
	ExtPubTimeISO     string `json:"ext_pub_time_iso"`
	ExpirationTimeISO string `json:"expiration_time_iso"`
	RecvTimeISO       string `json:"recv_time_iso"`

	// Opaque attributes merged in from the generic side-table, if any.
	Extra map[string]any `json:"extra,omitempty"`
}

// Less reports whether m sorts before other for delivery.
//
// A higher priority value sorts first. At equal priority, the external
// publish time decides if both messages carry one, because a publisher's own
// clock is authoritative over ours. Otherwise the internal publish time
// decides; no two internally-timestamped messages should legitimately tie.
func (m *Message) Less(other *Message) bool {
	selfPriority := PriorityMax - m.Priority
	otherPriority := PriorityMax - other.Priority

	if selfPriority < otherPriority {
		return true
	}
	if selfPriority > otherPriority {
		return false
	}

	if m.ExtPubTime != 0 && other.ExtPubTime != 0 {
		return m.ExtPubTime < other.ExtPubTime
	}

	return m.PubTime < other.PubTime
}

// AddISOTimes derives the ISO-8601 mirrors of the float timestamps.
// It is idempotent and skips any source field that is unset, leaving the
// corresponding ISO field as an empty string.
func (m *Message) AddISOTimes() {
	m.PubTimeISO = ISOTimeFromUnix(m.PubTime)

	if m.ExtPubTime != 0 {
		m.ExtPubTimeISO = ISOTimeFromUnix(m.ExtPubTime)
	}

	if m.ExpirationTime != 0 {
		m.ExpirationTimeISO = ISOTimeFromUnix(m.ExpirationTime)
	}

	if m.RecvTime != 0 {
		m.RecvTimeISO = ISOTimeFromUnix(m.RecvTime)
	}
}

// GDMessageRow is a guaranteed-delivery message as stored in SQL. When read
// back for delivery it is joined with one endpoint queue entry, which fills
// the queue-side fields.
type GDMessageRow struct {
	ID                int64   `db:"id"`
	EndpMsgQueueID    int64   `db:"-"`
	SubKey            string  `db:"-"`
	PubMsgID          string  `db:"pub_msg_id"`
	PubCorrelID       string  `db:"pub_correl_id"`
	InReplyTo         string  `db:"in_reply_to"`
	ExtClientID       string  `db:"ext_client_id"`
	GroupID           string  `db:"group_id"`
	PositionInGroup   int     `db:"position_in_group"`
	PubTime           float64 `db:"pub_time"`
	ExtPubTime        float64 `db:"ext_pub_time"`
	Data              string  `db:"data"`
	MimeType          string  `db:"mime_type"`
	Priority          int     `db:"priority"`
	Expiration        int64   `db:"expiration"`
	ExpirationTime    float64 `db:"expiration_time"`
	TopicID           int     `db:"topic_id"`
	Size              int     `db:"size"`
	PublishedByID     int     `db:"published_by_id"`
	PubPatternMatched string  `db:"pub_pattern_matched"`
	SubPatternMatched string  `db:"-"`
	UserCtx           string  `db:"user_ctx"`
	MsgCtx            string  `db:"msg_ctx"`
	Opaque            string  `db:"opaque1"`
}

// TableName returns the database table name for GDMessageRow.
func (r GDMessageRow) TableName() string {
	return tablePrefix + "message"
}

// NewGDMessage materializes a guaranteed-delivery message from its SQL row
// for the given sub-key.
//
// The row's message context is JSON-decoded if present. If the context
// signals that the payload was encoded with the engine's own MIME marker,
// the payload itself is JSON-decoded too. Opaque attributes from the generic
// side-column are merged onto the message as extra fields.
func NewGDMessage(subKey, topicName string, row *GDMessageRow) (*Message, error) {
	m := &Message{
		SubKey:            subKey,
		EndpMsgQueueID:    row.EndpMsgQueueID,
		PubMsgID:          row.PubMsgID,
		PubCorrelID:       row.PubCorrelID,
		InReplyTo:         row.InReplyTo,
		ExtClientID:       row.ExtClientID,
		GroupID:           row.GroupID,
		PositionInGroup:   row.PositionInGroup,
		PubTime:           row.PubTime,
		ExtPubTime:        row.ExtPubTime,
		RecvTime:          UTCNow(),
		Data:              row.Data,
		MimeType:          row.MimeType,
		Priority:          row.Priority,
		Expiration:        row.Expiration,
		ExpirationTime:    row.ExpirationTime,
		HasGD:             true,
		TopicName:         topicName,
		Size:              row.Size,
		PublishedByID:     row.PublishedByID,
		PubPatternMatched: row.PubPatternMatched,
		SubPatternMatched: row.SubPatternMatched,
		UserCtx:           row.UserCtx,
	}

	if row.MsgCtx != "" {
		if err := json.Unmarshal([]byte(row.MsgCtx), &m.MsgCtx); err != nil {
			return nil, fmt.Errorf("invalid message context for msg %s: %w", row.PubMsgID, err)
		}
	}

	if m.MsgCtx["mime_type"] == MimeTypeInternal {
		var data any
		if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
			return nil, fmt.Errorf("invalid internally-encoded payload for msg %s: %w", row.PubMsgID, err)
		}
		m.Data = data
	}

	if row.Opaque != "" {
		if err := json.Unmarshal([]byte(row.Opaque), &m.Extra); err != nil {
			return nil, fmt.Errorf("invalid opaque attributes for msg %s: %w", row.PubMsgID, err)
		}
	}

	m.AddISOTimes()

	return m, nil
}

// NewNonGDMessage materializes a transient message from its in-RAM publish
// event for the given sub-key.
//
// The event's shared sub-pattern map is consumed, not just read: each
// subscriber's delivery task extracts its own matched pattern exactly once,
// so a second construction attempt for the same sub-key fails.
func NewNonGDMessage(subKey, serverName string, serverPID int, event *NonGDEvent) (*Message, error) {
	subPatternMatched, ok := event.SubPatternMatched.Pop(subKey)
	if !ok {
		return nil, fmt.Errorf("no sub pattern entry for sub key %q in msg %s", subKey, event.PubMsgID)
	}

	m := &Message{
		SubKey:            subKey,
		ServerName:        serverName,
		ServerPID:         serverPID,
		PubMsgID:          event.PubMsgID,
		PubCorrelID:       event.PubCorrelID,
		InReplyTo:         event.InReplyTo,
		ExtClientID:       event.ExtClientID,
		GroupID:           event.GroupID,
		PositionInGroup:   event.PositionInGroup,
		PubTime:           event.PubTime,
		ExtPubTime:        event.ExtPubTime,
		RecvTime:          UTCNow(),
		Data:              event.Data,
		MimeType:          event.MimeType,
		Priority:          event.Priority,
		Expiration:        event.Expiration,
		ExpirationTime:    event.ExpirationTime,
		HasGD:             false,
		TopicName:         event.TopicName,
		Size:              event.Size,
		PublishedByID:     event.PublishedByID,
		PubPatternMatched: event.PubPatternMatched,
		SubPatternMatched: subPatternMatched,
		ReplyToSK:         event.ReplyToSK,
		DeliverToSK:       event.DeliverToSK,
		UserCtx:           event.UserCtx,
		MsgCtx:            event.MsgCtx,
	}

	if m.MimeType == "" {
		m.MimeType = DefaultMimeType
	}
	if m.Priority == 0 {
		m.Priority = PriorityDefault
	}

	m.AddISOTimes()

	return m, nil
}
