// Package bundler compiles submitted application source into a single
// self-contained ES module.
//
// Every bare import is pinned through the dependency catalog and inlined
// from the resolver cache; nothing is left for the browser to resolve at
// runtime. The bundle starts with a shared __name helper so several
// bundles can coexist on one page.
package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/domain/resolver"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

var scriptExts = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
}

// Result is a successful bundle.
type Result struct {
	Code         []byte
	CSS          []byte
	Dependencies map[string]string
	Exports      []string
	Warnings     []string
	Took         time.Duration
}

// Error is a bundling failure attributed to a pipeline stage.
type Error struct {
	Stage  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Bundler wraps esbuild with the CDN plugin.
type Bundler struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// New creates a Bundler.
func New(res *resolver.Resolver, logger *zap.Logger) *Bundler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bundler{resolver: res, logger: logger}
}

// Bundle compiles src, which must already be persisted.
func (b *Bundler) Bundle(ctx context.Context, src *Source) (*Result, error) {
	if src.Root() == "" {
		return nil, &Error{Stage: types.StageSource, Detail: errNotPersisted.Error(), Err: errNotPersisted}
	}
	start := time.Now()

	scanned := b.scan(src)
	pinned, unknown := Snapshot(scanned, b.resolver.Catalog())
	if len(unknown) > 0 {
		b.logger.Debug("Ignoring scanned specifiers outside the catalog", zap.Strings("specifiers", unknown))
	}

	deps := &depSet{pins: make(map[string]string)}
	outDir := filepath.Join(src.Root(), ".out")
	opts := api.BuildOptions{
		EntryPoints:       []string{filepath.Join(src.Root(), filepath.FromSlash(src.Entry))},
		AbsWorkingDir:     src.Root(),
		Outdir:            outDir,
		EntryNames:        "app",
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Splitting:         false,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            api.ES2020,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		KeepNames:         true,
		PreserveSymlinks:  true,
		JSX:               api.JSXAutomatic,
		Charset:           api.CharsetUTF8,
		Sourcemap:         api.SourceMapNone,
		LogLevel:          api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": `"production"`,
		},
		Loader: map[string]api.Loader{
			".js":   api.LoaderJSX,
			".png":  api.LoaderDataURL,
			".jpg":  api.LoaderDataURL,
			".jpeg": api.LoaderDataURL,
			".gif":  api.LoaderDataURL,
			".webp": api.LoaderDataURL,
			".svg":  api.LoaderDataURL,
			".css":  api.LoaderCSS,
		},
		Plugins: []api.Plugin{cdnPlugin(ctx, b.resolver, src.Root(), src.aliasRoot(), deps)},
	}

	result, err := run(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, classify(result.Errors)
	}

	out := &Result{Dependencies: pinned}
	for k, v := range deps.snapshot() {
		out.Dependencies[k] = v
	}
	for _, f := range result.OutputFiles {
		switch filepath.Ext(f.Path) {
		case ".js":
			out.Code = InjectNameShim(f.Contents)
		case ".css":
			out.CSS = f.Contents
		}
	}
	if len(out.Code) == 0 {
		return nil, &Error{Stage: types.StageTransform, Detail: "bundle produced no output", Err: apperr.E(apperr.BuildFailed, "empty bundle")}
	}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, formatMessage(w))
	}

	if err := checkMetafile(result.Metafile, out); err != nil {
		return nil, err
	}

	out.Took = time.Since(start)
	b.logger.Info("Bundled source",
		zap.String("entry", src.Entry),
		zap.Int("bytes", len(out.Code)),
		zap.Int("dependencies", len(out.Dependencies)),
		zap.Duration("took", out.Took),
	)
	return out, nil
}

func (b *Bundler) scan(src *Source) []string {
	seen := make(map[string]struct{})
	for p, data := range src.Files {
		if !scriptExts[strings.ToLower(filepath.Ext(p))] {
			continue
		}
		for _, s := range ScanImports(data) {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// run executes one esbuild pass that stops when ctx is done.
func run(ctx context.Context, opts api.BuildOptions) (api.BuildResult, error) {
	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return api.BuildResult{}, classify(cerr.Errors)
	}
	defer bctx.Dispose()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			bctx.Cancel()
		case <-done:
		}
	}()

	result := bctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return api.BuildResult{}, &Error{Stage: types.StageTransform, Detail: "build cancelled", Err: err}
	}
	return result, nil
}

// classify attributes esbuild errors to a stage. Errors raised by the
// resolve hook carry their cause in Detail.
func classify(msgs []api.Message) error {
	stage := types.StageTransform
	var cause error
	details := make([]string, 0, len(msgs))
	for _, m := range msgs {
		details = append(details, formatMessage(m))
		if err, ok := m.Detail.(error); ok && cause == nil {
			cause = err
			stage = types.StageResolve
		} else if strings.HasPrefix(m.Text, "Could not resolve") {
			stage = types.StageResolve
		}
	}
	if cause == nil {
		cause = apperr.E(apperr.BuildFailed, "%s", details[0])
	} else if apperr.KindOf(cause) != apperr.UpstreamFailure {
		cause = apperr.Wrap(cause, apperr.BuildFailed, "unresolvable import")
	}

	const maxDetails = 5
	if len(details) > maxDetails {
		details = append(details[:maxDetails], fmt.Sprintf("and %d more", len(msgs)-maxDetails))
	}
	return &Error{Stage: stage, Detail: strings.Join(details, "; "), Err: cause}
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

type metafile struct {
	Outputs map[string]struct {
		Exports []string `json:"exports"`
		Imports []struct {
			Path     string `json:"path"`
			External bool   `json:"external"`
		} `json:"imports"`
	} `json:"outputs"`
}

// checkMetafile rejects bundles that leave imports to the browser or expose
// nothing to mount.
func checkMetafile(raw string, out *Result) error {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return &Error{Stage: types.StageTransform, Detail: "unreadable build metadata", Err: err}
	}

	var external []string
	for name, o := range meta.Outputs {
		if !strings.HasSuffix(name, ".js") {
			continue
		}
		out.Exports = append(out.Exports, o.Exports...)
		for _, imp := range o.Imports {
			if imp.External {
				external = append(external, imp.Path)
			}
		}
	}
	if len(external) > 0 {
		sort.Strings(external)
		return &Error{
			Stage:  types.StageResolve,
			Detail: "unresolved imports: " + strings.Join(external, ", "),
			Err:    apperr.E(apperr.BuildFailed, "unresolved imports"),
		}
	}

	sort.Strings(out.Exports)
	for _, e := range out.Exports {
		if e == "default" || e == "mount" {
			return nil
		}
	}
	return &Error{
		Stage:  types.StageTransform,
		Detail: "entry must export a default component or a mount function",
		Err:    apperr.E(apperr.BuildFailed, "missing entry export"),
	}
}

// StageOf returns the stage of a bundling failure, or fallback.
func StageOf(err error, fallback string) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Stage
	}
	return fallback
}
