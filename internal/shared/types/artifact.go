package types

import "time"

// Artifact file names inside a build output directory.
const (
	EntryFile    = "app.js"
	StylesFile   = "styles.css"
	ManifestFile = "manifest_v1.json"
	PackageFile  = "package.json"
	BundleZip    = "bundle.zip"
	IndexFile    = "artifact_index.json"
)

// ArtifactMeta describes one written artifact.
type ArtifactMeta struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactIndex lists every file a build produced.
type ArtifactIndex struct {
	BuildID     string                  `json:"build_id"`
	CreatedAt   time.Time               `json:"created_at"`
	FinalizedAt *time.Time              `json:"finalized_at,omitempty"`
	Files       map[string]ArtifactMeta `json:"files"`
}

// Capabilities are runtime features an app may use.
type Capabilities struct {
	Storage bool `json:"storage"`
	Rooms   bool `json:"rooms"`
}

// Manifest describes how to load a published bundle.
type Manifest struct {
	Version      int               `json:"manifest_version"`
	BuildID      string            `json:"build_id"`
	Entry        string            `json:"entry"`
	Integrity    string            `json:"integrity"`
	Styles       string            `json:"styles"`
	Capabilities Capabilities      `json:"capabilities"`
	Dependencies map[string]string `json:"dependencies"`
}

// Referenced returns every file name the manifest points at.
func (m *Manifest) Referenced() []string {
	return []string{m.Entry, m.Styles, PackageFile}
}
