package topichub

import (
	"github.com/coregx/topichub/model"
)

// ServiceAfterPublish is the service the sync trigger invokes whenever a
// topic with pending messages is handed over to delivery.
const ServiceAfterPublish = "topichub.after-publish"

// AfterPublishPayload is what the after-publish service receives: which
// topic needs delivering, to whom, and the non-GD messages pulled out of
// the backlog for it. GD messages stay in the database and are signalled
// through HasGDMsgList only.
type AfterPublishPayload struct {
	CID       string `json:"cid"`
	TopicID   int    `json:"topic_id"`
	TopicName string `json:"topic_name"`

	Subscriptions []*model.Subscription `json:"subscriptions"`
	NonGDMsgList  []*model.NonGDEvent   `json:"non_gd_msg_list"`

	HasGDMsgList bool `json:"has_gd_msg_list"`
	IsBGCall     bool `json:"is_bg_call"`

	// Greatest publication time among the messages covered by this call.
	PubTimeMax float64 `json:"pub_time_max"`
}

// ServiceInvoker hands after-publish notifications to the delivery layer.
// Implementations must not block for long; the trigger invokes them from
// short-lived goroutines.
type ServiceInvoker interface {
	InvokeService(service string, payload *AfterPublishPayload)
}

// InvokeServiceFunc adapts a function to the ServiceInvoker interface.
type InvokeServiceFunc func(service string, payload *AfterPublishPayload)

// InvokeService implements ServiceInvoker.
func (f InvokeServiceFunc) InvokeService(service string, payload *AfterPublishPayload) {
	f(service, payload)
}

// NoOpServiceInvoker swallows notifications. Useful in tests and in setups
// where delivery is polled rather than pushed.
type NoOpServiceInvoker struct{}

// InvokeService implements ServiceInvoker as a no-op.
func (n *NoOpServiceInvoker) InvokeService(_ string, _ *AfterPublishPayload) {}

// LoggingServiceInvoker logs each notification. Handy while wiring a new
// delivery layer up.
type LoggingServiceInvoker struct {
	logger Logger
}

// NewLoggingServiceInvoker creates an invoker that logs through the given
// logger. A nil logger means no logging.
func NewLoggingServiceInvoker(logger Logger) *LoggingServiceInvoker {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &LoggingServiceInvoker{logger: logger}
}

// InvokeService implements ServiceInvoker by logging the notification.
func (l *LoggingServiceInvoker) InvokeService(service string, payload *AfterPublishPayload) {
	l.logger.Infof("Invoking `%s` for topic `%s` (cid:%s subs:%d non-gd:%d gd:%t)",
		service, payload.TopicName, payload.CID, len(payload.Subscriptions),
		len(payload.NonGDMsgList), payload.HasGDMsgList)
}
