// Package assets persists the example images and solution text of a problem
// under the output root, one directory per problem.
//
// Images are written through a temporary file that is renamed into place, so
// a file with the final name always holds a complete download. That makes
// presence on disk a reliable completion marker and lets an interrupted crawl
// resume without re-downloading anything it already has.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/client"
	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// partSuffix marks temporary files of in-progress writes.
const partSuffix = ".part"

// Getter downloads one asset. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*client.Response, error)
}

// Store writes problem assets below a root directory.
// A problem directory is only touched by the goroutine persisting that problem.
type Store struct {
	root      string
	getter    Getter
	logger    zerolog.Logger
	writeFile func(target string, data []byte) error
}

// NewStore creates the output root if needed and returns a store writing into it.
func NewStore(root string, getter Getter, logger zerolog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if getter == nil {
		return nil, fmt.Errorf("asset getter is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}
	return &Store{root: root, getter: getter, logger: logger, writeFile: writeAtomic}, nil
}

// Root returns the output root directory.
func (s *Store) Root() string {
	return s.root
}

// Persist writes the solution text and images of page.
//
// The solution is written first. Images already on disk are reused without a
// request. A failed image is recorded in its slot and does not stop the
// others. An error is returned only when the problem directory or the
// solution file cannot be written; a directory created by the failing call is
// removed again.
func (s *Store) Persist(ctx context.Context, page *problem.Page) (*problem.Persisted, error) {
	if len(page.ImageURLs) != problem.ImagesPerProblem {
		return nil, problem.NewFailure(page.ID, problem.KindValidation,
			fmt.Errorf("%w: %d image urls, want %d", problem.ErrValidation, len(page.ImageURLs), problem.ImagesPerProblem))
	}

	dir := filepath.Join(s.root, page.ID.Dir())
	_, statErr := os.Stat(dir)
	created := errors.Is(statErr, fs.ErrNotExist)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, problem.NewFailure(page.ID, problem.KindInternal, fmt.Errorf("create problem directory: %w", err))
	}
	s.removeStaleParts(dir)

	solution := page.Solution()
	if err := s.writeFile(filepath.Join(dir, problem.SolutionFile), []byte(solution)); err != nil {
		if created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				s.logger.Warn().Err(rmErr).Str("path", dir).Msg("Failed to remove problem directory")
			}
		}
		return nil, problem.NewFailure(page.ID, problem.KindInternal, fmt.Errorf("write solution: %w", err))
	}

	persisted := &problem.Persisted{
		ID:           page.ID,
		SolutionText: solution,
		SolutionPath: relPath(page.ID, problem.SolutionFile),
	}
	names := FileNames(page.ImageURLs)
	for i, rawURL := range page.ImageURLs {
		persisted.Slots[i] = s.persistImage(ctx, page.ID, dir, names[i], rawURL)
	}

	return persisted, nil
}

func (s *Store) persistImage(ctx context.Context, id problem.ID, dir, name, rawURL string) problem.Slot {
	slot := problem.Slot{URL: rawURL}
	target := filepath.Join(dir, name)

	if fileExists(target) {
		imagesTotal.WithLabelValues("reused").Inc()
		slot.Path = relPath(id, name)
		slot.Reused = true
		return slot
	}

	start := time.Now()
	resp, err := s.getter.Get(ctx, rawURL)
	if err != nil {
		imagesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().
			Err(err).
			Int("problem_id", int(id)).
			Str("url", rawURL).
			Str("error_class", string(client.ClassOf(err))).
			Msg("Image download failed")
		slot.Err = err
		return slot
	}

	if err := s.writeFile(target, resp.Body); err != nil {
		imagesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().
			Err(err).
			Int("problem_id", int(id)).
			Str("url", rawURL).
			Msg("Image write failed")
		slot.Err = err
		return slot
	}

	imagesTotal.WithLabelValues("downloaded").Inc()
	imageBytesTotal.Add(float64(len(resp.Body)))

	mime, isImage := detectImage(resp.Body)
	imageTypesTotal.WithLabelValues(mime).Inc()
	if !isImage {
		s.logger.Warn().
			Int("problem_id", int(id)).
			Str("url", rawURL).
			Str("mime", mime).
			Msg("Stored image body is not an image")
	}
	s.logger.Debug().
		Int("problem_id", int(id)).
		Str("url", rawURL).
		Int("bytes", len(resp.Body)).
		Dur("duration", time.Since(start)).
		Msg("Image stored")

	slot.Path = relPath(id, name)
	return slot
}

// detectImage sniffs the content type of a downloaded body. Non-image bodies
// are still stored, only reported.
func detectImage(body []byte) (string, bool) {
	mt := mimetype.Detect(body)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return mt.String(), true
		}
	}
	return mt.String(), false
}

// removeStaleParts deletes temporary files left behind by an interrupted run.
func (s *Store) removeStaleParts(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, ".*"+partSuffix))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", m).Msg("Failed to remove stale partial file")
			continue
		}
		stalePartsRemoved.Inc()
	}
}

// writeAtomic writes data to a temporary file in the target directory, syncs
// it and renames it over target.
func writeAtomic(target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*"+partSuffix)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// relPath returns the slash-separated path of a problem file relative to the
// output root, as recorded in the index.
func relPath(id problem.ID, name string) string {
	return path.Join(id.Dir(), name)
}

// FileNames derives the on-disk file name of every image URL. Names come from
// the last path segment; a name already taken by an earlier slot is prefixed
// with its 1-based slot number.
func FileNames(urls []string) []string {
	names := make([]string, len(urls))
	seen := make(map[string]bool, len(urls))
	for i, u := range urls {
		name := FileName(u, i+1)
		if seen[name] {
			name = fmt.Sprintf("%d_%s", i+1, name)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// FileName derives a safe file name from the last path segment of rawURL.
// slot is used to name images whose URL carries no usable segment.
func FileName(rawURL string, slot int) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	seg := sanitize(p[strings.LastIndex(p, "/")+1:])
	if seg == "" || seg == problem.SolutionFile || strings.HasPrefix(seg, ".") {
		return fmt.Sprintf("image_%d", slot)
	}
	return seg
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}
