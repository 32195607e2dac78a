package problem

import (
	"fmt"
)

// Header is the fixed column set of the index file.
func Header() []string {
	h := []string{"BP_ID", "solution", "solution_txt_path"}
	for i := 1; i <= ImagesPerProblem; i++ {
		h = append(h, fmt.Sprintf("Image_%d_path", i))
	}
	return h
}

// Row is one index record.
type Row struct {
	ID           ID
	Solution     string
	SolutionPath string
	ImagePaths   [ImagesPerProblem]string
}

// Record returns the row as CSV fields in Header order.
func (r Row) Record() []string {
	rec := make([]string, 0, 3+ImagesPerProblem)
	rec = append(rec, r.ID.Name(), r.Solution, r.SolutionPath)
	rec = append(rec, r.ImagePaths[:]...)
	return rec
}

// RowFromRecord parses CSV fields produced by Record.
func RowFromRecord(rec []string) (Row, error) {
	if len(rec) != 3+ImagesPerProblem {
		return Row{}, fmt.Errorf("index record has %d fields, want %d", len(rec), 3+ImagesPerProblem)
	}
	id, err := ParseName(rec[0])
	if err != nil {
		return Row{}, err
	}
	row := Row{
		ID:           id,
		Solution:     rec[1],
		SolutionPath: rec[2],
	}
	copy(row.ImagePaths[:], rec[3:])
	return row, nil
}
