package schemas

import "time"

// -- Profile Schemas --

// RawProfileData is text scraped from a profile page. It is ephemeral and never persisted.
type RawProfileData struct {
	Platform        Platform  `json:"platform"`
	ProfileURL      string    `json:"profileUrl"`
	Name            string    `json:"name,omitempty"`
	Headline        string    `json:"headline,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Location        string    `json:"location,omitempty"`
	Website         string    `json:"website,omitempty"`
	PinnedContent   string    `json:"pinnedContent,omitempty"`
	RecentPosts     []string  `json:"recentPosts,omitempty"`
	FollowerCount   string    `json:"followerCount,omitempty"`
	FollowingCount  string    `json:"followingCount,omitempty"`
	ConnectionCount string    `json:"connectionCount,omitempty"`
	ScrapedAt       time.Time `json:"scrapedAt"`
}

// ParsedProfileData is the structured form of a RawProfileData produced by the extraction model.
type ParsedProfileData struct {
	Company    string   `json:"company,omitempty"`
	Title      string   `json:"title,omitempty"`
	Location   string   `json:"location,omitempty"`
	Headline   string   `json:"headline,omitempty"`
	Website    string   `json:"website,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ProfileResult is the per-target outcome of a scrape batch.
type ProfileResult struct {
	URL     string          `json:"url"`
	Profile *RawProfileData `json:"profile,omitempty"`
	Error   string          `json:"error,omitempty"`
}
