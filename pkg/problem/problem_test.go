package problem

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDName(t *testing.T) {
	assert.Equal(t, "BP1", ID(1).Name())
	assert.Equal(t, "BP1234", ID(1234).Dir())
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"BP1", 1, false},
		{"BP3000", 3000, false},
		{"BP0", 0, true},
		{"BP-3", 0, true},
		{"12", 0, true},
		{"BPx", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageSolution(t *testing.T) {
	p := &Page{SolutionText: "circles vs squares", SolutionFound: true}
	assert.Equal(t, "circles vs squares", p.Solution())

	missing := &Page{}
	assert.Equal(t, SolutionNotFoundText, missing.Solution())
}

func TestPersistedRow(t *testing.T) {
	p := &Persisted{ID: 7, SolutionText: "left is convex", SolutionPath: "BP7/solution.txt"}
	for i := range p.Slots {
		p.Slots[i] = Slot{Path: fmt.Sprintf("BP7/ex%d.png", i+1)}
	}
	p.Slots[4] = Slot{Err: errors.New("boom")}

	row := p.Row()
	rec := row.Record()

	require.Len(t, rec, len(Header()))
	assert.Equal(t, "BP7", rec[0])
	assert.Equal(t, "left is convex", rec[1])
	assert.Equal(t, "BP7/solution.txt", rec[2])
	assert.Equal(t, "BP7/ex1.png", rec[3])
	assert.Equal(t, DownloadFailedText, rec[7])
	assert.Equal(t, []int{5}, p.FailedSlots())

	back, err := RowFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, row, back)
}

func TestRowFromRecord_WrongWidth(t *testing.T) {
	_, err := RowFromRecord([]string{"BP1", "x"})
	assert.Error(t, err)
}

func TestHeader(t *testing.T) {
	h := Header()
	assert.Equal(t, "BP_ID", h[0])
	assert.Equal(t, "solution_txt_path", h[2])
	assert.Equal(t, "Image_12_path", h[len(h)-1])
	assert.Len(t, h, 15)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))

	f := NewFailure(3, KindValidation, fmt.Errorf("%w: found 10 images", ErrValidation))
	wrapped := fmt.Errorf("process: %w", f)
	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrValidation)
	assert.Contains(t, f.Error(), "BP3 validation")
}
