package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sternrassler/bongard-harvester/pkg/problem"
)

// Layout describes what is on disk for one problem.
type Layout struct {
	ID     problem.ID
	Dir    string
	Exists bool

	// Images lists image file names in the directory, sorted.
	Images []string

	HasSolution bool
	Solution    string

	// StaleParts counts leftover temporary files.
	StaleParts int
}

// Complete reports whether the directory holds twelve images and a solution file.
func (l Layout) Complete() bool {
	return l.Exists && l.HasSolution && len(l.Images) == problem.ImagesPerProblem
}

// Inspect reads the directory of problem id below root. A missing directory
// is not an error.
func Inspect(root string, id problem.ID) (Layout, error) {
	layout := Layout{ID: id, Dir: filepath.Join(root, id.Dir())}

	entries, err := os.ReadDir(layout.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return layout, nil
	}
	if err != nil {
		return layout, fmt.Errorf("read %s: %w", layout.Dir, err)
	}
	layout.Exists = true

	for _, e := range entries {
		name := e.Name()
		switch {
		case !e.Type().IsRegular():
		case strings.HasPrefix(name, ".") && strings.HasSuffix(name, partSuffix):
			layout.StaleParts++
		case strings.HasPrefix(name, "."):
		case name == problem.SolutionFile:
			data, err := os.ReadFile(filepath.Join(layout.Dir, name))
			if err != nil {
				return layout, fmt.Errorf("read solution: %w", err)
			}
			layout.HasSolution = true
			layout.Solution = string(data)
		default:
			layout.Images = append(layout.Images, name)
		}
	}
	sort.Strings(layout.Images)

	return layout, nil
}

// Check compares an index row with the files below root and returns one
// message per problem found. An empty result means every path in the row
// names a file on disk.
func Check(root string, row problem.Row) []string {
	var issues []string
	resolve := func(rel string) string {
		return filepath.Join(root, filepath.FromSlash(rel))
	}

	if row.SolutionPath == "" {
		issues = append(issues, "no solution path")
	} else if !fileExists(resolve(row.SolutionPath)) {
		issues = append(issues, fmt.Sprintf("missing %s", row.SolutionPath))
	}

	for i, p := range row.ImagePaths {
		switch {
		case p == "" || p == problem.DownloadFailedText:
			issues = append(issues, fmt.Sprintf("image %d failed to download", i+1))
		case !fileExists(resolve(p)):
			issues = append(issues, fmt.Sprintf("missing %s", p))
		}
	}

	return issues
}
