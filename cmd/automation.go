package cmd

import (
	"context"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/enrichment"
	"github.com/xkilldash9x/socialpilot/internal/service"
	"github.com/xkilldash9x/socialpilot/internal/sessionstore"
)

// Automation is the part of service.Automation the commands use.
type Automation interface {
	SetupSession(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error)
	ValidateSession(ctx context.Context, p schemas.Platform) bool
	SessionStatus(ctx context.Context, p schemas.Platform) sessionstore.Status
	ClearSession(ctx context.Context, p schemas.Platform) error
	ScrapeProfiles(ctx context.Context, p schemas.Platform, targets []string, opts ...service.RunOption) ([]schemas.ProfileResult, error)
	Publish(ctx context.Context, req schemas.PublishRequest) schemas.PublishResult
	EngageBatch(ctx context.Context, reqs []schemas.EngagementRequest, opts ...service.RunOption) ([]schemas.EngagementResult, error)
	EnrichProfile(ctx context.Context, contact enrichment.Contact, raw *schemas.RawProfileData) (enrichment.Update, *schemas.ParsedProfileData, error)
	Shutdown(ctx context.Context) error
}
