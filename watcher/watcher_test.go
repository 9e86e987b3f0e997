package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imagecleanse/logging"
	"imagecleanse/testsupport"
	"imagecleanse/watcher"
)

type channelTarget chan []string

func (c channelTarget) Trigger(paths []string) { c <- paths }

func TestWatcherBatchesChanges(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, "existing/keep.jpg", ".thumbnails/old.jpg")

	target := make(channelTarget, 16)
	w, err := watcher.New(watcher.Options{
		Root:          root,
		IgnoreFolders: []string{".thumbnails"},
		Debounce:      50 * time.Millisecond,
	}, target, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	testsupport.WriteFile(t, filepath.Join(root, "existing", "new.jpg"), nil)
	testsupport.WriteFile(t, filepath.Join(root, ".thumbnails", "skip.jpg"), nil)
	testsupport.WriteFile(t, filepath.Join(root, "fresh", "deep", "c.jpg"), nil)

	want := map[string]bool{"existing/new.jpg": false, "fresh/deep/c.jpg": false}
	deadline := time.After(5 * time.Second)
	for remaining := len(want); remaining > 0; {
		select {
		case batch := <-target:
			for _, p := range batch {
				if filepath.Dir(p) == ".thumbnails" {
					t.Fatalf("ignored folder reported: %s", p)
				}
				if seen, ok := want[p]; ok && !seen {
					want[p] = true
					remaining--
				}
			}
		case <-deadline:
			t.Fatalf("timed out; seen %v", want)
		}
	}
}

func TestWatcherRejectsMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := watcher.New(watcher.Options{Root: missing}, make(channelTarget, 1), logging.NewNop()); err == nil {
		t.Fatal("expected error for missing root")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("watcher must not create the root: %v", err)
	}
}
