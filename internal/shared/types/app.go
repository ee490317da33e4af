package types

import "time"

// NetworkMode is an app's egress policy.
type NetworkMode string

const (
	NetworkStrict      NetworkMode = "strict"
	NetworkProxy       NetworkMode = "proxy"
	NetworkDirectProxy NetworkMode = "direct+proxy"
)

// AllowsProxy reports whether proxied egress is permitted at all.
func (m NetworkMode) AllowsProxy() bool {
	return m == NetworkProxy || m == NetworkDirectProxy
}

// RateLimit bounds proxied egress for one app and host.
type RateLimit struct {
	RPS       int `json:"rps"`
	Burst     int `json:"burst"`
	MaxBodyMB int `json:"max_body_mb"`
}

// NetworkPolicy is the network half of a security policy.
type NetworkPolicy struct {
	Mode      NetworkMode `json:"mode"`
	Allowlist []string    `json:"allowlist"`
	RateLimit RateLimit   `json:"rate_limit"`
}

// SandboxPolicy controls iframe sandbox flags.
type SandboxPolicy struct {
	AllowForms  bool `json:"allow_forms"`
	AllowModals bool `json:"allow_modals"`
}

// SecurityPolicy is owned by the app record.
type SecurityPolicy struct {
	Network NetworkPolicy `json:"network"`
	Sandbox SandboxPolicy `json:"sandbox"`
}

// ArchivedVersion is a previously current build.
type ArchivedVersion struct {
	BuildID    string    `json:"build_id"`
	Version    int       `json:"version"`
	ArchivedAt time.Time `json:"archived_at"`
}

// AppRecord is the published app as seen by this service.
type AppRecord struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"owner_id"`
	Title            string            `json:"title"`
	BuildID          string            `json:"build_id,omitempty"`
	PendingBuildID   string            `json:"pending_build_id,omitempty"`
	Version          int               `json:"version"`
	ArchivedVersions []ArchivedVersion `json:"archived_versions"`
	Capabilities     Capabilities      `json:"capabilities"`
	Security         SecurityPolicy    `json:"security"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ReferencedBuilds returns every build id the app still points at.
func (a *AppRecord) ReferencedBuilds() []string {
	ids := make([]string, 0, len(a.ArchivedVersions)+2)
	if a.BuildID != "" {
		ids = append(ids, a.BuildID)
	}
	if a.PendingBuildID != "" {
		ids = append(ids, a.PendingBuildID)
	}
	for _, v := range a.ArchivedVersions {
		ids = append(ids, v.BuildID)
	}
	return ids
}
