package bundler

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/thesara-space/forge/internal/domain/resolver"
	"github.com/thesara-space/forge/internal/shared/apperr"
)

const (
	nsVirtualUI = "virtual-ui"
	nsHTTP      = "http-url"
)

//go:embed ui/components.tsx
var virtualUI string

// depSet records the packages the resolve hook actually pinned.
type depSet struct {
	mu   sync.Mutex
	pins map[string]string
}

func (d *depSet) add(name, version string) {
	d.mu.Lock()
	d.pins[name] = version
	d.mu.Unlock()
}

func (d *depSet) snapshot() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.pins))
	for k, v := range d.pins {
		out[k] = v
	}
	return out
}

// cdnPlugin routes every import of a build:
//
//	@/components/ui/<name>  -> embedded UI components
//	@/<path>                -> the submitted source tree
//	https://<cdn>/...       -> the resolver, by URL
//	<bare>                  -> the resolver, pinned by the catalog
//
// Bare specifiers outside the catalog fail the build, as does any file
// import that leaves root.
func cdnPlugin(ctx context.Context, res *resolver.Resolver, root, aliasRoot string, deps *depSet) api.Plugin {
	cdn, _ := url.Parse(res.CDNBase())

	onCDN := func(u *url.URL) bool {
		return cdn != nil && strings.EqualFold(u.Host, cdn.Host) && (u.Scheme == "https" || u.Scheme == "http")
	}
	fail := func(err error) []api.Message {
		return []api.Message{{Text: err.Error(), Detail: err}}
	}
	escapes := func(importer, spec string) []api.Message {
		from := importer
		if rel, err := filepath.Rel(root, importer); err == nil && filepath.IsLocal(rel) {
			from = filepath.ToSlash(rel)
		}
		return fail(apperr.E(apperr.InputInvalid, "%s imports %q outside the source root", from, spec))
	}

	return api.Plugin{
		Name: "forge-cdn",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: resolver.UIAliasPattern.String()},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: "components", Namespace: nsVirtualUI}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: `^@/`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					rel := strings.TrimPrefix(args.Path, "@/")
					if !within(root, filepath.Join(aliasRoot, filepath.FromSlash(rel))) {
						return api.OnResolveResult{Errors: escapes(args.Importer, args.Path)}, nil
					}
					r := build.Resolve("./"+rel, api.ResolveOptions{
						ResolveDir: aliasRoot,
						Kind:       args.Kind,
						Importer:   args.Importer,
					})
					if len(r.Errors) > 0 {
						return api.OnResolveResult{Errors: r.Errors}, nil
					}
					return api.OnResolveResult{Path: r.Path, Namespace: r.Namespace, External: r.External}, nil
				})

			// Relative file imports fall through to esbuild once confined.
			build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?(/|$)`, Namespace: "file"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if !within(root, filepath.Join(args.ResolveDir, filepath.FromSlash(args.Path))) {
						return api.OnResolveResult{Errors: escapes(args.Importer, args.Path)}, nil
					}
					return api.OnResolveResult{}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: `^https?://`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					u, err := url.Parse(args.Path)
					if err != nil || !onCDN(u) {
						err := apperr.E(apperr.InputInvalid, "remote import %q is not served by the CDN", args.Path)
						return api.OnResolveResult{Errors: fail(err)}, nil
					}
					return api.OnResolveResult{Path: res.Canonicalize(u).String(), Namespace: nsHTTP}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: `^[^./][^:]*$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					u, version, err := res.ModuleURL(args.Path)
					if err != nil {
						return api.OnResolveResult{Errors: fail(err)}, nil
					}
					name, _ := resolver.SplitSpecifier(args.Path)
					deps.add(name, version)
					return api.OnResolveResult{Path: u, Namespace: nsHTTP, PluginData: args.Path}, nil
				})

			// Paths inside CDN modules resolve against the importing URL.
			build.OnResolve(api.OnResolveOptions{Filter: `.*`, Namespace: nsHTTP},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					base, err := url.Parse(args.Importer)
					if err != nil {
						return api.OnResolveResult{}, fmt.Errorf("invalid importer %q: %w", args.Importer, err)
					}
					ref, err := url.Parse(strings.ReplaceAll(args.Path, "@^", "@"))
					if err != nil {
						return api.OnResolveResult{}, fmt.Errorf("invalid import %q: %w", args.Path, err)
					}
					u := base.ResolveReference(ref)
					if !onCDN(u) {
						err := apperr.E(apperr.InputInvalid, "module %s imports %q outside the CDN", args.Importer, args.Path)
						return api.OnResolveResult{Errors: fail(err)}, nil
					}
					return api.OnResolveResult{Path: res.Canonicalize(u).String(), Namespace: nsHTTP}, nil
				})

			// Absolute paths and package.json redirects bypass the resolve
			// hooks, so nothing outside root is read either way.
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if !within(root, args.Path) {
						err := apperr.E(apperr.InputInvalid, "%s is outside the source root", args.Path)
						return api.OnLoadResult{Errors: fail(err)}, nil
					}
					return api.OnLoadResult{}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: nsVirtualUI},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := virtualUI
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderTSX, ResolveDir: aliasRoot}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: nsHTTP},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					var (
						m   *resolver.Module
						err error
					)
					if spec, ok := args.PluginData.(string); ok && spec != "" {
						m, err = res.Resolve(ctx, spec, "")
					} else {
						m, err = res.ResolveURL(ctx, args.Path)
					}
					if err != nil {
						return api.OnLoadResult{Errors: fail(err)}, nil
					}
					contents := string(m.Contents)
					return api.OnLoadResult{Contents: &contents, Loader: loaderFor(m)}, nil
				})
		},
	}
}

// within reports whether p names root or a path beneath it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

func loaderFor(m *resolver.Module) api.Loader {
	ct := strings.ToLower(m.ContentType)
	switch {
	case strings.Contains(ct, "css"):
		return api.LoaderCSS
	case strings.Contains(ct, "json"):
		return api.LoaderJSON
	}
	if u, err := url.Parse(m.URL); err == nil {
		switch path.Ext(u.Path) {
		case ".css":
			return api.LoaderCSS
		case ".json":
			return api.LoaderJSON
		}
	}
	return api.LoaderJS
}
