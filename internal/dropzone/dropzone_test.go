package dropzone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/upload"
)

type fakeDropper struct {
	mu      sync.Mutex
	entered int
	file    upload.File
	err     error
}

func (d *fakeDropper) DragEnter() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entered++
}

func (d *fakeDropper) Drop(files ...upload.File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.file = files[0]
}

func (d *fakeDropper) Submit(ctx context.Context) (*vault.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return &vault.Document{ID: 1, Name: upload.DefaultName(d.file.Name)}, nil
}

func startWatch(t *testing.T, dir string, d Dropper) <-chan Result {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, d, WithSettle(20*time.Millisecond), WithResults(results))
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned %v", err)
		}
	})
	// Give the watcher time to register before files are written.
	time.Sleep(50 * time.Millisecond)
	return results
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for upload")
		return Result{}
	}
}

func TestWatch_UploadsNewFiles(t *testing.T) {
	dir := t.TempDir()
	d := &fakeDropper{}
	results := startWatch(t, dir, d)

	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "receipt.pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("upload failed: %v", r.Err)
	}
	if filepath.Base(r.Path) != "receipt.pdf" || r.Document.Name != "receipt" {
		t.Errorf("result = %+v", r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entered != 1 || string(d.file.Data) != "%PDF-1.4" {
		t.Errorf("dropper = entered %d, file %+v", d.entered, d.file)
	}
}

func TestWatch_FailureKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	d := &fakeDropper{err: errors.New("server down")}
	results := startWatch(t, dir, d)

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, results); r.Err == nil {
		t.Fatal("expected upload error")
	}

	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o600); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, results); r.Err != nil || filepath.Base(r.Path) != "b.txt" {
		t.Errorf("result = %+v", r)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), &fakeDropper{})
	if err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
