package engagement

import (
	"fmt"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

// steps describes the DOM interaction for one action on one platform. Empty selectors
// are skipped.
type steps struct {
	// applied is visible once the action has taken effect, e.g. the "unlike" toggle.
	applied string
	trigger string
	confirm string
	editor  string
	submit  string
}

var actions = map[schemas.Platform]map[schemas.EngagementAction]steps{
	schemas.PlatformX: {
		schemas.EngageLike: {
			applied: `article [data-testid="unlike"]`,
			trigger: `article [data-testid="like"]`,
		},
		schemas.EngageRetweet: {
			applied: `article [data-testid="unretweet"]`,
			trigger: `article [data-testid="retweet"]`,
			confirm: `[data-testid="retweetConfirm"]`,
		},
		schemas.EngageReply: {
			trigger: `article [data-testid="reply"]`,
			editor:  `div[role="dialog"] [data-testid="tweetTextarea_0"]`,
			submit:  `div[role="dialog"] [data-testid="tweetButton"]`,
		},
	},
	schemas.PlatformLinkedIn: {
		schemas.EngageLike: {
			applied: `button.react-button__trigger[aria-pressed="true"]`,
			trigger: `button.react-button__trigger[aria-pressed="false"]`,
		},
		schemas.EngageRetweet: {
			trigger: `button.social-reshare-button`,
			confirm: `div.artdeco-dropdown__content--is-open li:first-child [role="button"]`,
		},
		schemas.EngageReply: {
			trigger: `button.comment-button`,
			editor:  `.comments-comment-box .ql-editor`,
			submit:  `button.comments-comment-box__submit-button`,
		},
	},
}

func lookup(p schemas.Platform, a schemas.EngagementAction) (steps, error) {
	byAction, ok := actions[p]
	if !ok {
		return steps{}, fmt.Errorf("engagement is not supported on %q", p)
	}
	s, ok := byAction[a]
	if !ok {
		return steps{}, fmt.Errorf("unknown engagement action %q", a)
	}
	return s, nil
}
