package scanner_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"imagecleanse/logging"
	"imagecleanse/scanner"
	"imagecleanse/testsupport"
	"imagecleanse/types"
)

func defaultOptions(root string) scanner.Options {
	return scanner.Options{
		Root:          root,
		IgnoreFolders: []string{".thumbnails", "ignore_dir"},
		IgnoreFiles:   []string{".DS_Store", "ignore_file"},
		Workers:       3,
	}
}

func reportPaths(r *types.ScanReport) []string {
	paths := r.Paths()
	slices.Sort(paths)
	return paths
}

func TestScanAppliesIgnoreRules(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root,
		"a/b.jpg",
		"a/.thumbnails/x.jpg",
		"a/.thumbnails/deeper/y.jpg",
		"ignore_dir/z.png",
		"._c.jpg",
		".DS_Store",
		"ignore_file",
		"notes.txt",
		"d.PNG",
		"e.jpeg",
	)

	s := scanner.New(testsupport.NewFakeExtractor(), logging.NewNop())
	report, err := s.Scan(context.Background(), defaultOptions(root))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []string{"a/b.jpg", "d.PNG", "e.jpeg"}
	if got := reportPaths(report); !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
	if report.FilesSeen != 3 {
		t.Fatalf("FilesSeen = %d, want 3", report.FilesSeen)
	}
	if !filepath.IsAbs(report.Folder) {
		t.Fatalf("report folder should be absolute, got %q", report.Folder)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Fatal("finish time precedes start time")
	}
	if err := report.Validate(); err != nil {
		t.Fatalf("scanner produced an invalid report: %v", err)
	}
}

func TestScanRecordsPerFileFailures(t *testing.T) {
	root := t.TempDir()
	fake := testsupport.NewFakeExtractor()
	for i := 0; i < 10; i++ {
		testsupport.WriteFile(t, filepath.Join(root, fmt.Sprintf("img%02d.jpg", i)), nil)
	}
	fake.Fail("img07.jpg")

	report, err := scanner.New(fake, logging.NewNop()).Scan(context.Background(), defaultOptions(root))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Images) != 9 {
		t.Fatalf("expected 9 images, got %d", len(report.Images))
	}
	if len(report.Errors) != 1 || report.Errors[0].Path != "img07.jpg" {
		t.Fatalf("expected one error for img07.jpg, got %+v", report.Errors)
	}
	if slices.Contains(report.Paths(), "img07.jpg") {
		t.Fatal("failed file must be omitted from images")
	}
}

func TestScanRecoversExtractorPanic(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, "good.jpg", "bad.jpg", "other.png")
	fake := testsupport.NewFakeExtractor()
	fake.Panic("bad.jpg")

	report, err := scanner.New(fake, logging.NewNop()).Scan(context.Background(), defaultOptions(root))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got, want := reportPaths(report), []string{"good.jpg", "other.png"}; !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if len(report.Errors) != 1 || report.Errors[0].Path != "bad.jpg" {
		t.Fatalf("expected one error for bad.jpg, got %+v", report.Errors)
	}
	if !strings.Contains(report.Errors[0].Err, "panic during feature extraction") {
		t.Fatalf("unexpected error text %q", report.Errors[0].Err)
	}
}

func TestScanRestrictTo(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root,
		"keep/one.jpg",
		"keep/two.jpg",
		"skip/three.jpg",
		"keep/.thumbnails/four.jpg",
	)
	fake := testsupport.NewFakeExtractor()

	opts := defaultOptions(root)
	opts.RestrictTo = []string{
		"keep/one.jpg",
		"./keep/one.jpg",
		"keep/.thumbnails/four.jpg",
		"keep/missing.jpg",
		"../outside.jpg",
	}
	report, err := scanner.New(fake, logging.NewNop()).Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := reportPaths(report); !slices.Equal(got, []string{"keep/one.jpg"}) {
		t.Fatalf("restricted scan paths = %v", got)
	}
	if fake.Calls() != 1 {
		t.Fatalf("extractor called %d times, want 1", fake.Calls())
	}

	opts.RestrictTo = []string{}
	report, err = scanner.New(fake, logging.NewNop()).Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Images) != 0 {
		t.Fatalf("empty restriction should scan nothing, got %v", report.Paths())
	}
}

func TestScanCancellationDiscardsReport(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		testsupport.WriteFile(t, filepath.Join(root, fmt.Sprintf("p%d.jpg", i)), nil)
	}
	fake := testsupport.NewFakeExtractor()
	fake.Block = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		report *types.ScanReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := scanner.New(fake, logging.NewNop()).Scan(ctx, defaultOptions(root))
		done <- result{r, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for fake.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", res.err)
		}
		if res.report != nil {
			t.Fatal("partial report must be discarded")
		}
		if !scanner.IsCancelled(res.err) {
			t.Fatal("IsCancelled should recognise the error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop after cancellation")
	}
}

func TestScanRejectsMissingRoot(t *testing.T) {
	s := scanner.New(testsupport.NewFakeExtractor(), logging.NewNop())
	if _, err := s.Scan(context.Background(), defaultOptions(filepath.Join(t.TempDir(), "gone"))); err == nil {
		t.Fatal("expected error for missing root")
	}
}
