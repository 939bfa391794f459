// Package freeze writes the routes of a build to a directory that any static
// file server can host.
package freeze

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/linkverify"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// MarkerFile identifies a directory written by a previous freeze, which may
// be overwritten without Force.
const MarkerFile = ".sitebuilder-freeze"

// ErrBrokenLinks is wrapped by the error returned when the build has broken links.
var ErrBrokenLinks = stderrors.New("broken links")

// Options control a freeze.
type Options struct {
	// Force allows writing into a non-empty directory not produced by a freeze.
	Force bool
	// Protected lists source directories the output directory must neither
	// contain nor live in, whatever Force says.
	Protected []string
}

// Summary lists what a freeze changed, as slash-separated paths relative to
// the output directory.
type Summary struct {
	Written   []string
	Unchanged []string
	Removed   []string
}

// BrokenLinksError lists every broken finding of a build.
type BrokenLinksError struct {
	Findings []linkverify.Finding
}

func (e *BrokenLinksError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d broken links:", len(e.Findings))
	for _, f := range e.Findings {
		b.WriteString("\n  ")
		b.WriteString(f.String())
	}
	return b.String()
}

func (e *BrokenLinksError) Unwrap() error { return ErrBrokenLinks }

// FileName maps a route to its file: "/" is index.html, pages get ".html",
// everything else keeps its path.
func FileName(r site.Route) string {
	p := strings.TrimPrefix(r.Path, "/")
	switch {
	case p == "":
		return "index.html"
	case r.Kind == site.RoutePage:
		return p + ".html"
	case r.Kind == site.RouteFeed && path.Ext(p) == "":
		return p + ".xml"
	default:
		return p
	}
}

// Write writes routes to outDir. It refuses to run when the build has broken
// links, reporting all of them, and when outDir is neither empty nor a
// previous freeze unless Force is set. Files whose bytes did not change are
// left alone and files no longer produced are removed.
func Write(ctx context.Context, result *build.BuildResult, routes *site.Set, outDir string, opts Options) (*Summary, error) {
	if result == nil || result.Report == nil {
		return nil, errors.BuildError("cannot freeze an incomplete build").Build()
	}
	if broken := result.Report.Broken(); len(broken) > 0 {
		return nil, errors.WrapError(&BrokenLinksError{Findings: broken}, errors.CategoryValidation, "refusing to freeze").
			WithContext("broken", len(broken)).
			Build()
	}
	if err := checkProtected(outDir, opts.Protected); err != nil {
		return nil, err
	}
	if err := checkOutDir(outDir, opts.Force); err != nil {
		return nil, err
	}

	summary := &Summary{}
	produced := map[string]bool{MarkerFile: true}
	for _, r := range routes.All() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		name := FileName(r)
		produced[name] = true
		changed, err := writeIfChanged(filepath.Join(outDir, filepath.FromSlash(name)), r.Body)
		if err != nil {
			return summary, errors.WrapError(err, errors.CategoryFileSystem, "failed to write output file").
				WithContext("path", name).
				Build()
		}
		if changed {
			summary.Written = append(summary.Written, name)
		} else {
			summary.Unchanged = append(summary.Unchanged, name)
		}
	}

	removed, err := removeStale(outDir, produced)
	summary.Removed = removed
	if err != nil {
		return summary, errors.WrapError(err, errors.CategoryFileSystem, "failed to remove stale output").Build()
	}
	if err := os.WriteFile(filepath.Join(outDir, MarkerFile), []byte(result.BuildID+"\n"), 0o600); err != nil {
		return summary, errors.WrapError(err, errors.CategoryFileSystem, "failed to write freeze marker").Build()
	}
	return summary, nil
}

func checkOutDir(outDir string, force bool) error {
	entries, err := os.ReadDir(outDir)
	if stderrors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
				WithContext("dir", outDir).Build()
		}
		return nil
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "output directory unreadable").
			WithContext("dir", outDir).Build()
	}
	if len(entries) == 0 || force {
		return nil
	}
	if _, err := os.Stat(filepath.Join(outDir, MarkerFile)); err == nil {
		return nil
	}
	return errors.NewError(errors.CategoryFileSystem, "output directory is not empty").
		WithContext("dir", outDir).
		WithContext("hint", "use --force to overwrite").
		Build()
}

// writeIfChanged replaces the file at p with data through a temporary file
// and reports whether anything was written.
func writeIfChanged(p string, data []byte) (bool, error) {
	// #nosec G304 -- path is inside the output directory
	if old, err := os.ReadFile(p); err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return false, err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

// removeStale deletes files under outDir that this freeze did not produce,
// then any directories left empty. Dot entries (.git, .nojekyll) are kept.
func removeStale(outDir string, produced map[string]bool) ([]string, error) {
	var removed, dirs []string
	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == outDir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(outDir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		rel = filepath.ToSlash(rel)
		if produced[rel] {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		removed = append(removed, rel)
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first so nested empty directories go too.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
	return removed, nil
}

// checkProtected refuses an output directory that overlaps a source directory,
// since removing stale files would delete sources.
func checkProtected(outDir string, protected []string) error {
	out, err := filepath.Abs(outDir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "invalid output directory").Build()
	}
	for _, p := range protected {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if within(out, abs) || within(abs, out) {
			return errors.NewError(errors.CategoryFileSystem, "output directory overlaps a source directory").
				Fatal().
				WithContext("out", out).
				WithContext("source", abs).
				Build()
		}
	}
	return nil
}

// within reports whether p is dir or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
