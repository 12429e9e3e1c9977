package interfaces

// Status distribution topics consumed by the dashboard
const (
	TopicJobList     = "job_list"
	TopicQueueStatus = "queue_status"
)

// StatusCallback receives a payload for a subscribed topic
type StatusCallback func(topic string, payload interface{})

// StatusAdapter is the observer contract shared by the push and poll
// delivery mechanisms. Subscribe is idempotent per topic; Unsubscribe and
// UnsubscribeAll are safe to call redundantly.
type StatusAdapter interface {
	Subscribe(topic string, callback StatusCallback) error
	Unsubscribe(topic string)
	UnsubscribeAll()
}
