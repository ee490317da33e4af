package types

import "time"

// BuildStatus is a build lifecycle state.
type BuildStatus string

const (
	BuildQueued    BuildStatus = "queued"
	BuildBundling  BuildStatus = "bundling"
	BuildVerifying BuildStatus = "verifying"
	BuildPublished BuildStatus = "published"
	BuildFailed    BuildStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s BuildStatus) Terminal() bool {
	return s == BuildPublished || s == BuildFailed
}

// BuildMode controls what happens to the app record on publish.
type BuildMode string

const (
	// ModePublish makes the build current immediately.
	ModePublish BuildMode = "publish"
	// ModeReview parks the build as pending until approved.
	ModeReview BuildMode = "review"
)

// Valid reports whether m is a known mode.
func (m BuildMode) Valid() bool {
	return m == ModePublish || m == ModeReview
}

// Build stages reported on failure.
const (
	StageSource    = "source"
	StageResolve   = "resolve"
	StageTransform = "transform"
	StageStyle     = "style"
	StageWrite     = "write"
	StageVerify    = "verify"
	StagePublish   = "publish"
)

// BuildRecord tracks one build attempt.
type BuildRecord struct {
	ID        string      `json:"id"`
	AppID     string      `json:"app_id"`
	Status    BuildStatus `json:"status"`
	Mode      BuildMode   `json:"mode"`
	Stage     string      `json:"stage,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BuildEvent is a best-effort lifecycle notification.
type BuildEvent struct {
	BuildID string      `json:"build_id"`
	Status  BuildStatus `json:"status"`
	Final   bool        `json:"final,omitempty"`
	Stage   string      `json:"stage,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}

// SourceFile is one submitted source file.
type SourceFile struct {
	Path     string `json:"path"`
	Contents []byte `json:"contents"`
}

// BuildRequest is a JSON build submission. Either Source (a single entry
// file) or Files is set.
type BuildRequest struct {
	AppID  string     `json:"app_id"`
	Mode   BuildMode  `json:"mode"`
	Entry  string     `json:"entry"`
	Source string     `json:"source"`
	Files  []TextFile `json:"files"`
}

// TextFile is a submitted file with text contents.
type TextFile struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// SourceFiles converts the request files for the bundler.
func (r *BuildRequest) SourceFiles() []SourceFile {
	files := make([]SourceFile, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, SourceFile{Path: f.Path, Contents: []byte(f.Contents)})
	}
	return files
}
