package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

const defaultMIME = "application/octet-stream"

// sources is the outcome of the enumerating stage.
type sources struct {
	Pages       []docmodel.SourceEntry
	Attachments []docmodel.Attachment
}

// Paths returns the project-relative paths of every page, used for eviction.
func (s *sources) Paths() []string {
	out := make([]string, len(s.Pages))
	for i, p := range s.Pages {
		out[i] = p.Path
	}
	return out
}

// enumerate discovers pages under the content directory and attachments
// under the files directory. A missing content directory is fatal; a missing
// files directory only means the site has no attachments.
func enumerate(ctx context.Context, root string, cfg *config.Config) (*sources, error) {
	contentDir := filepath.Join(root, filepath.FromSlash(cfg.Content.Dir))
	info, err := os.Stat(contentDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", contentDir)
		}
		return nil, errors.WrapError(fmt.Errorf("%w: %w", ErrEnumerate, err), errors.CategoryFileSystem, "content directory unreadable").
			Fatal().
			WithContext("dir", contentDir).
			Build()
	}

	out := &sources{}
	err = filepath.WalkDir(contentDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if skipHidden(p, contentDir, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(contentDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ignored(cfg.Content.Ignore, rel) {
			return nil
		}
		entry, err := readPage(p, path.Join(cfg.Content.Dir, rel), rel)
		if err != nil {
			return err
		}
		out.Pages = append(out.Pages, entry)
		return nil
	})
	if err != nil {
		return nil, enumerateError(err, contentDir)
	}

	filesDir := filepath.Join(root, filepath.FromSlash(cfg.Content.FilesDir))
	out.Attachments, err = enumerateAttachments(ctx, filesDir)
	if err != nil {
		return nil, enumerateError(err, filesDir)
	}
	return out, nil
}

func enumerateAttachments(ctx context.Context, filesDir string) ([]docmodel.Attachment, error) {
	if _, err := os.Stat(filesDir); stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var out []docmodel.Attachment
	err := filepath.WalkDir(filesDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if skipHidden(p, filesDir, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filesDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hash, err := checksum.File(p)
		if err != nil {
			return err
		}
		out = append(out, docmodel.Attachment{
			ID:      filepath.ToSlash(rel),
			AbsPath: p,
			Hash:    hash,
			MIME:    mimeFor(p),
			Size:    info.Size(),
		})
		return nil
	})
	return out, err
}

func readPage(abs, projectRel, contentRel string) (docmodel.SourceEntry, error) {
	// #nosec G304 -- path comes from walking the content directory
	data, err := os.ReadFile(abs)
	if err != nil {
		return docmodel.SourceEntry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return docmodel.SourceEntry{}, err
	}
	return docmodel.SourceEntry{
		Path:        projectRel,
		AbsPath:     abs,
		ID:          docmodel.PageID(contentRel),
		Kind:        docmodel.KindPage,
		Data:        data,
		Fingerprint: checksum.Sum(data),
		ModTime:     info.ModTime(),
		Size:        info.Size(),
	}, nil
}

// skipHidden reports whether p is a dotfile or dot directory below root.
func skipHidden(p, root string, d fs.DirEntry) bool {
	return p != root && strings.HasPrefix(d.Name(), ".")
}

func ignored(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func mimeFor(p string) string {
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return defaultMIME
}

func enumerateError(err error, dir string) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.WrapError(fmt.Errorf("%w: %w", ErrEnumerate, err), errors.CategoryFileSystem, "failed to enumerate sources").
		Fatal().
		WithContext("dir", dir).
		Build()
}
