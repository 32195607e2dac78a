// Package problem defines the domain types shared by the harvester pipeline:
// problem identifiers, fetched pages, persisted assets and index rows.
package problem

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ImagesPerProblem is the fixed number of example images a problem page must carry.
	ImagesPerProblem = 12

	// SolutionFile is the name of the text asset inside a problem directory.
	SolutionFile = "solution.txt"

	// NamePrefix prefixes the numeric ID in canonical names and directory names.
	NamePrefix = "BP"
)

// Sentinels rendered into persisted text. Internal code carries the tagged
// state (Page.SolutionFound, Slot.Err) and only renders these at the boundary.
const (
	SolutionNotFoundText = "solution text not found"
	DownloadFailedText   = "download failed"
)

// ID identifies a problem on the origin site.
type ID int

// Name returns the canonical name of the problem, e.g. "BP12".
func (id ID) Name() string {
	return NamePrefix + strconv.Itoa(int(id))
}

// Dir returns the directory name of the problem relative to the output root.
func (id ID) Dir() string {
	return id.Name()
}

// ParseName parses a canonical name ("BP12") back into an ID.
func ParseName(name string) (ID, error) {
	if !strings.HasPrefix(name, NamePrefix) {
		return 0, fmt.Errorf("invalid problem name %q", name)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, NamePrefix))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid problem name %q", name)
	}
	return ID(n), nil
}

// Page is the validated content extracted from one problem page.
type Page struct {
	ID  ID
	URL string

	// SolutionText is empty when SolutionFound is false.
	SolutionText  string
	SolutionFound bool

	// ImageURLs holds exactly ImagesPerProblem absolute URLs in document order.
	ImageURLs []string
}

// Solution returns the text to persist for the page.
func (p *Page) Solution() string {
	if !p.SolutionFound {
		return SolutionNotFoundText
	}
	return p.SolutionText
}

// Slot is the outcome of persisting one image.
type Slot struct {
	URL string

	// Path is relative to the output root and set only on success.
	Path string

	// Reused is true when the file was already on disk and no request was made.
	Reused bool

	Err error
}

// OK reports whether the image is present on disk.
func (s Slot) OK() bool {
	return s.Err == nil && s.Path != ""
}

// Persisted describes a problem whose assets have been written.
type Persisted struct {
	ID           ID
	SolutionText string
	SolutionPath string
	Slots        [ImagesPerProblem]Slot
}

// FailedSlots returns the 1-based positions of images that could not be stored.
func (p *Persisted) FailedSlots() []int {
	var failed []int
	for i, s := range p.Slots {
		if !s.OK() {
			failed = append(failed, i+1)
		}
	}
	return failed
}

// ReusedCount returns how many images were already present on disk.
func (p *Persisted) ReusedCount() int {
	n := 0
	for _, s := range p.Slots {
		if s.Reused {
			n++
		}
	}
	return n
}

// Row renders the index row for the problem.
func (p *Persisted) Row() Row {
	row := Row{
		ID:           p.ID,
		Solution:     p.SolutionText,
		SolutionPath: p.SolutionPath,
	}
	for i, s := range p.Slots {
		if s.OK() {
			row.ImagePaths[i] = s.Path
		} else {
			row.ImagePaths[i] = DownloadFailedText
		}
	}
	return row
}
