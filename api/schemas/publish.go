package schemas

// -- Publishing Schemas --

// PublishMode selects who triggers the final submit action.
type PublishMode string

const (
	// ModeAuto lets the automation click the finalize button itself.
	ModeAuto PublishMode = "auto"
	// ModeReview prepares the post and waits for a human to submit it.
	ModeReview PublishMode = "review"
)

// PublishErrorCode is the closed failure taxonomy of the publish path.
type PublishErrorCode string

const (
	ErrCodeSessionExpired PublishErrorCode = "session_expired"
	ErrCodeCaptcha        PublishErrorCode = "captcha"
	ErrCodeUploadFailed   PublishErrorCode = "upload_failed"
	ErrCodeTimeout        PublishErrorCode = "timeout"
	ErrCodeUnknown        PublishErrorCode = "unknown"
)

// PublishRequest is consumed exactly once per publish attempt. No retries are implicit.
type PublishRequest struct {
	Platform       Platform    `json:"platform"`
	Mode           PublishMode `json:"mode"`
	Text           string      `json:"text"`
	MediaAssetIDs  []string    `json:"mediaAssetIds,omitempty"`
	ThreadTexts    []string    `json:"threadTexts,omitempty"`
	ThreadMediaIDs [][]string  `json:"threadMediaIds,omitempty"`
	ContentItemID  string      `json:"contentItemId"`
}

// ThreadMedia returns the media ids attached to the i-th additional thread item.
func (r PublishRequest) ThreadMedia(i int) []string {
	if i < 0 || i >= len(r.ThreadMediaIDs) {
		return nil
	}
	return r.ThreadMediaIDs[i]
}

// PublishResult is the outcome of one publish attempt. Build it with PublishSucceeded or
// PublishFailed so that Success and ErrorCode are never populated together.
type PublishResult struct {
	Success        bool             `json:"success"`
	PlatformURL    string           `json:"platformUrl,omitempty"`
	PlatformPostID string           `json:"platformPostId,omitempty"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      PublishErrorCode `json:"errorCode,omitempty"`
	ScreenshotPath string           `json:"screenshotPath,omitempty"`
}

// PublishSucceeded builds a successful result. url and id may be empty when verification
// could not reconstruct the permalink.
func PublishSucceeded(url, id string) PublishResult {
	return PublishResult{Success: true, PlatformURL: url, PlatformPostID: id}
}

// PublishFailed builds a failed result. An empty code is reported as unknown.
func PublishFailed(code PublishErrorCode, err error) PublishResult {
	if code == "" {
		code = ErrCodeUnknown
	}
	res := PublishResult{ErrorCode: code}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Error = string(code)
	}
	return res
}
