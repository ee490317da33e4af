package artifact

import (
	"path"

	"github.com/gabriel-vasile/mimetype"
)

var contentTypes = map[string]string{
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".zip":  "application/zip",
}

// ContentType returns the media type to serve an artifact with. Known
// extensions win; anything else is sniffed.
func ContentType(name string, data []byte) string {
	if ct, ok := contentTypes[path.Ext(name)]; ok {
		return ct
	}
	return mimetype.Detect(data).String()
}
