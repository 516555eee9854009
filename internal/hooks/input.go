package hooks

import (
	"net/url"
	"time"
)

// EventInput is the JSON a bot pipes to `rapport hook <event>`.
// All fields are optional; different events populate different subsets.
type EventInput struct {
	Guild string `json:"guild"`

	// interaction
	ID        string            `json:"id,omitempty"`
	FromUser  string            `json:"from_user,omitempty"`
	ToUser    string            `json:"to_user,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// user
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	// voice and summary
	User string `json:"user,omitempty"`

	// voice: the channel before and after a voice state change. An empty
	// before means a join, an empty after means a leave.
	BeforeChannel string     `json:"before_channel,omitempty"`
	AfterChannel  string     `json:"after_channel,omitempty"`
	ChannelName   string     `json:"channel_name,omitempty"`
	At            *time.Time `json:"at,omitempty"`
}

// guildPath returns the API prefix for the input's guild.
func (in *EventInput) guildPath() string {
	return "/api/guilds/" + url.PathEscape(in.Guild)
}
