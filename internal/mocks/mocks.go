// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Session() config.SessionConfig {
	args := m.Called()
	return args.Get(0).(config.SessionConfig)
}

func (m *MockConfig) AntiDetection() config.AntiDetectionConfig {
	args := m.Called()
	return args.Get(0).(config.AntiDetectionConfig)
}

func (m *MockConfig) Publish() config.PublishConfig {
	args := m.Called()
	return args.Get(0).(config.PublishConfig)
}

func (m *MockConfig) Engagement() config.EngagementConfig {
	args := m.Called()
	return args.Get(0).(config.EngagementConfig)
}

func (m *MockConfig) Media() config.MediaConfig {
	args := m.Called()
	return args.Get(0).(config.MediaConfig)
}

func (m *MockConfig) LLM() config.LLMConfig {
	args := m.Called()
	return args.Get(0).(config.LLMConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)                     { m.Called(b) }
func (m *MockConfig) SetBrowserProfileRoot(dir string)              { m.Called(dir) }
func (m *MockConfig) SetAntiDetection(a config.AntiDetectionConfig) { m.Called(a) }
func (m *MockConfig) SetPublishArtifactDir(dir string)              { m.Called(dir) }

// NewMockConfigFrom returns a MockConfig whose getters all answer from cfg.
func NewMockConfigFrom(cfg *config.Config) *MockConfig {
	m := new(MockConfig)
	m.On("Logger").Return(cfg.Logger()).Maybe()
	m.On("Database").Return(cfg.Database()).Maybe()
	m.On("Browser").Return(cfg.Browser()).Maybe()
	m.On("Session").Return(cfg.Session()).Maybe()
	m.On("AntiDetection").Return(cfg.AntiDetection()).Maybe()
	m.On("Publish").Return(cfg.Publish()).Maybe()
	m.On("Engagement").Return(cfg.Engagement()).Maybe()
	m.On("Media").Return(cfg.Media()).Maybe()
	m.On("LLM").Return(cfg.LLM()).Maybe()
	return m
}

// -- Step Ledger Mock --

// MockSink mocks ledger.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) CreateStep(ctx context.Context, rec schemas.StepRecord) (int, error) {
	args := m.Called(ctx, rec)
	return args.Int(0), args.Error(1)
}

// -- Media Resolver Mock --

// MockResolver mocks media.Resolver.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, assetIDs []string) ([]string, error) {
	args := m.Called(ctx, assetIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// -- Profile Extractor Mock --

// MockExtractor mocks enrichment.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, raw *schemas.RawProfileData) (*schemas.ParsedProfileData, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ParsedProfileData), args.Error(1)
}
