package model

// Delivery methods a subscription can use.
const (
	DeliveryMethodPull      = "pull"
	DeliveryMethodNotify    = "notify"
	DeliveryMethodWebSocket = "wsx"
)

// Subscription connects an endpoint to a topic under a unique sub-key,
// the addressing unit for delivery.
type Subscription struct {
	ID                int     `db:"id"`
	CreationTime      float64 `db:"creation_time"`
	SubKey            string  `db:"sub_key"`
	EndpointID        int     `db:"endpoint_id"`
	TopicID           int     `db:"topic_id"`
	TopicName         string  `db:"topic_name"`
	SubPatternMatched string  `db:"sub_pattern_matched"`
	DeliveryMethod    string  `db:"delivery_method"`
	HasGD             bool    `db:"has_gd"`
	ExtClientID       string  `db:"ext_client_id"`
	WSChannelID       int     `db:"ws_channel_id"`
}

// TableName returns the database table name for Subscription.
func (s Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// IsWSX reports whether this subscription belongs to a WebSocket channel.
func (s *Subscription) IsWSX() bool {
	return s.WSChannelID != 0
}

// Less orders subscriptions by sub-key, giving scans a stable order.
func (s *Subscription) Less(other *Subscription) bool {
	return s.SubKey < other.SubKey
}

// SubKeyServer describes which server currently runs the delivery task for
// a sub-key. A sub-key maps to at most one server at a time.
type SubKeyServer struct {
	SubKey       string  `db:"sub_key"`
	ClusterID    int     `db:"cluster_id"`
	ServerName   string  `db:"server_name"`
	ServerPID    int     `db:"server_pid"`
	EndpointType string  `db:"endpoint_type"`
	ChannelName  string  `db:"channel_name"`
	PubClientID  string  `db:"pub_client_id"`
	ExtClientID  string  `db:"ext_client_id"`
	CreationTime float64 `db:"creation_time"`
}
