package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/bongard-harvester/internal/testutil"
	"github.com/Sternrassler/bongard-harvester/pkg/index"
	"github.com/Sternrassler/bongard-harvester/pkg/problem"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func crawlArgs(origin *testutil.MockOrigin, output string, extra ...string) []string {
	args := []string{
		"run",
		"--base-url", origin.ProblemURLPrefix(),
		"--output", output,
		"--workers", "2",
		"--politeness-min", "0s",
		"--politeness-max", "1ms",
		"--initial-backoff", "1ms",
		"--max-backoff", "5ms",
	}
	return append(args, extra...)
}

func TestRunAndVerify(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.ServeProblem(1, problem.ImagesPerProblem, "Figures on the left are convex")
	origin.ServeProblem(3, problem.ImagesPerProblem, "Three versus four")

	output := filepath.Join(t.TempDir(), "dataset")

	out, err := execute(t, crawlArgs(origin, output, "--start", "1", "--end", "3")...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "completed:       2") {
		t.Errorf("Expected summary with 2 completed problems, got:\n%s", out)
	}
	if !strings.Contains(out, "not_found:") {
		t.Errorf("Expected not_found in skipped kinds, got:\n%s", out)
	}

	rows, err := index.ReadAll(filepath.Join(output, "solutions_and_images.csv"))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].ID != 3 {
		t.Fatalf("Expected rows for BP1 and BP3, got %+v", rows)
	}

	out, err = execute(t, "verify", "--output", output)
	if err != nil {
		t.Fatalf("verify failed on a complete dataset: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 indexed problems, 2 complete, 0 incomplete") {
		t.Errorf("Unexpected verify output:\n%s", out)
	}

	if err := os.Remove(filepath.Join(output, "BP3", "BP3_4.png")); err != nil {
		t.Fatalf("remove image: %v", err)
	}
	out, err = execute(t, "verify", "--output", output)
	if err == nil {
		t.Fatal("Expected verify to fail after removing an image")
	}
	if !strings.Contains(out, "BP3: missing BP3/BP3_4.png") {
		t.Errorf("Expected missing image to be reported, got:\n%s", out)
	}
}

func TestRun_AppendModeResumes(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	for id := 1; id <= 3; id++ {
		origin.ServeProblem(id, problem.ImagesPerProblem, "solution")
	}
	output := t.TempDir()

	if _, err := execute(t, crawlArgs(origin, output, "--start", "1", "--end", "2", "--index-mode", "append")...); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	origin.Reset()

	out, err := execute(t, crawlArgs(origin, output, "--start", "1", "--end", "3", "--index-mode", "append")...)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(out, "already indexed: 2") {
		t.Errorf("Expected 2 already indexed problems, got:\n%s", out)
	}
	if got := origin.CountPrefix("/BP"); got != 1 {
		t.Errorf("Expected only BP3 to be fetched, got %d page requests", got)
	}
}

func TestRun_RetryStatusesFromEnvironment(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	for _, tc := range []struct {
		id     int
		status int
	}{{1, 503}, {2, 502}} {
		paths := make([]string, problem.ImagesPerProblem)
		for i := range paths {
			paths[i] = testutil.ImagePath(tc.id, i+1)
			origin.SetResponse(paths[i], testutil.NewImageResponse(paths[i]))
		}
		origin.SetSequence(testutil.ProblemPath(tc.id),
			testutil.NewStatusResponse(tc.status),
			testutil.NewPageResponse(testutil.ProblemPage(tc.id, paths, "solution")))
	}

	// 503 is left out, so BP1 is not retried.
	t.Setenv("BONGARD_RETRY_STATUSES", "429,502")

	output := filepath.Join(t.TempDir(), "dataset")
	out, err := execute(t, crawlArgs(origin, output, "--start", "1", "--end", "2")...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "completed:       1") {
		t.Errorf("Expected BP2 to complete after a retried 502, got:\n%s", out)
	}
	if !strings.Contains(out, "http_status:") {
		t.Errorf("Expected BP1 skipped with http_status, got:\n%s", out)
	}
	if got := origin.PathCount(testutil.ProblemPath(1)); got != 1 {
		t.Errorf("BP1 requests = %d, want 1", got)
	}
	if got := origin.PathCount(testutil.ProblemPath(2)); got != 2 {
		t.Errorf("BP2 requests = %d, want 2", got)
	}
}

func TestRun_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"end before start", []string{"run", "--start", "5", "--end", "2"}},
		{"no workers", []string{"run", "--workers", "0"}},
		{"unknown index mode", []string{"run", "--index-mode", "merge"}},
		{"missing config file", []string{"run", "--config", "/nonexistent/harvester.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestRun_UnwritableOutput(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, crawlArgs(origin, filepath.Join(blocker, "dataset"), "--start", "1", "--end", "1")...)
	if err == nil {
		t.Fatal("Expected run to fail when the output root cannot be created")
	}
	if origin.GetRequestCount() != 0 {
		t.Errorf("Expected no requests, got %d", origin.GetRequestCount())
	}
}

func TestVerify_MissingIndex(t *testing.T) {
	if _, err := execute(t, "verify", "--output", t.TempDir()); err == nil {
		t.Error("Expected verify to fail without an index")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "bongard-harvester dev") {
		t.Errorf("Unexpected version output %q", out)
	}
}
