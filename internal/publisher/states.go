package publisher

import "fmt"

// State is one stage of a publish attempt.
type State int

const (
	StateInit State = iota
	StateSessionCheck
	StateNavigate
	StateDetectBlockers
	StateComposeOpen
	StateTypeText
	StateUploadMedia
	StateSubmit
	StateWaitForUser
	StateVerify
	StateDone
)

var stateNames = map[State]string{
	StateInit:           "init",
	StateSessionCheck:   "session_check",
	StateNavigate:       "navigate",
	StateDetectBlockers: "detect_blockers",
	StateComposeOpen:    "compose_open",
	StateTypeText:       "type_text",
	StateUploadMedia:    "upload_media",
	StateSubmit:         "submit",
	StateWaitForUser:    "wait_for_user",
	StateVerify:         "verify",
	StateDone:           "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StepType is the ledger step name for the state.
func (s State) StepType() string {
	return "publish." + s.String()
}
