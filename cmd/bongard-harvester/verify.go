package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/bongard-harvester/pkg/assets"
	"github.com/Sternrassler/bongard-harvester/pkg/index"
	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/spf13/cobra"
)

// errIncomplete is returned by verify when any indexed problem is not fully on disk.
var errIncomplete = errors.New("dataset incomplete")

// NewVerifyCommand builds the "verify" command.
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every indexed problem has its twelve images and solution text on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			rows, err := index.ReadAll(cfg.IndexPath())
			if err != nil {
				return err
			}

			report := verifyRows(cfg.OutputDir, rows)
			report.print(cmd.OutOrStdout())
			if report.incomplete() > 0 {
				return fmt.Errorf("%w: %d of %d problems", errIncomplete, report.incomplete(), len(rows))
			}
			return nil
		},
	}

	addOutputFlags(cmd.Flags())
	return cmd
}

type verifyReport struct {
	rows   int
	issues map[problem.ID][]string
	order  []problem.ID
}

func (r *verifyReport) add(id problem.ID, issue string) {
	if _, ok := r.issues[id]; !ok {
		r.order = append(r.order, id)
	}
	r.issues[id] = append(r.issues[id], issue)
}

func (r *verifyReport) incomplete() int {
	return len(r.order)
}

func (r *verifyReport) print(w io.Writer) {
	for _, id := range r.order {
		for _, issue := range r.issues[id] {
			fmt.Fprintf(w, "%s: %s\n", id.Name(), issue)
		}
	}
	fmt.Fprintf(w, "%d indexed problems, %d complete, %d incomplete\n", r.rows, r.rows-r.incomplete(), r.incomplete())
}

// verifyRows checks each index row against the layout below root: exactly one
// row per problem, every recorded path present, and a directory holding
// twelve images plus the solution text.
func verifyRows(root string, rows []problem.Row) *verifyReport {
	report := &verifyReport{rows: len(rows), issues: make(map[problem.ID][]string)}
	seen := make(map[problem.ID]bool, len(rows))

	for _, row := range rows {
		if seen[row.ID] {
			report.add(row.ID, "duplicate index row")
			continue
		}
		seen[row.ID] = true

		for _, issue := range assets.Check(root, row) {
			report.add(row.ID, issue)
		}

		layout, err := assets.Inspect(root, row.ID)
		switch {
		case err != nil:
			report.add(row.ID, err.Error())
		case !layout.Exists:
			report.add(row.ID, "directory missing")
		case len(layout.Images) != problem.ImagesPerProblem:
			report.add(row.ID, fmt.Sprintf("%d image files, want %d", len(layout.Images), problem.ImagesPerProblem))
		}
	}
	return report
}
