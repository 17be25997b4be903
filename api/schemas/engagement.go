package schemas

// -- Engagement Schemas --

// EngagementAction is an interaction performed on an existing post.
type EngagementAction string

const (
	EngageLike    EngagementAction = "like"
	EngageRetweet EngagementAction = "retweet"
	EngageReply   EngagementAction = "reply"
)

// EngagementRequest targets a single post.
type EngagementRequest struct {
	Platform  Platform         `json:"platform"`
	PostURL   string           `json:"postUrl"`
	Action    EngagementAction `json:"action"`
	ReplyText string           `json:"replyText,omitempty"`
}

// EngagementResult is returned for every request, success or not, so a batch can continue.
type EngagementResult struct {
	PostURL   string           `json:"postUrl"`
	Action    EngagementAction `json:"action"`
	Success   bool             `json:"success"`
	Skipped   bool             `json:"skipped,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorCode PublishErrorCode `json:"errorCode,omitempty"`
}
