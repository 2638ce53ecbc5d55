package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/store"
)

type sent struct {
	doc  vault.NewDocument
	body string
}

type fakeGateway struct {
	mu   sync.Mutex
	err  error
	gate chan struct{}
	sent []sent
}

func (g *fakeGateway) UploadDocument(ctx context.Context, doc vault.NewDocument) (*vault.Document, error) {
	body, _ := io.ReadAll(doc.Content)
	g.mu.Lock()
	g.sent = append(g.sent, sent{doc: doc, body: string(body)})
	gate, err := g.gate, g.err
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &vault.Document{ID: 42, Name: doc.Name, Folder: doc.Folder, Tags: doc.Tags}, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type fakeRefresher struct {
	mutations []store.Mutation
}

func (f *fakeRefresher) AfterMutation(ctx context.Context, m store.Mutation) error {
	f.mutations = append(f.mutations, m)
	return nil
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report"},
		{"a.b.c", "a.b"},
		{"README", "README"},
		{".env", ".env"},
		{"archive.tar.gz", "archive.tar"},
		{"trailing.", "trailing"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := DefaultName(tt.in); got != tt.want {
				t.Errorf("DefaultName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "pdf", data: []byte("%PDF-1.7\n"), want: "application/pdf"},
		{name: "text", data: []byte("hello world\n"), want: "text/plain"},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), want: "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentType(tt.data); got != tt.want {
				t.Errorf("ContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipeline_NameDerivedBeforeSubmit(t *testing.T) {
	gw := &fakeGateway{}
	p := New(gw, 3, nil)

	p.Pick(File{Name: "report.pdf", Data: []byte("%PDF-1.4")})
	if got := p.Name(); got != "report" {
		t.Fatalf("Name() = %q, want report", got)
	}

	p.SetName("  ")
	_, err := p.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if gw.count() != 0 {
		t.Error("gateway called with an empty name")
	}
	if _, ok := p.File(); !ok {
		t.Error("file dropped after validation failure")
	}
}

func TestPipeline_SubmitWithoutFile(t *testing.T) {
	gw := &fakeGateway{}
	rec := notify.NewRecorder()
	p := New(gw, 3, nil, WithNotifier(rec))
	p.SetName("orphan")

	_, err := p.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if last, _ := rec.Last(); last.Message != "Both a file and document name are required." {
		t.Errorf("notification = %+v", last)
	}
	if gw.count() != 0 {
		t.Error("gateway called without a file")
	}
}

func TestPipeline_DragAndLastDropWins(t *testing.T) {
	p := New(&fakeGateway{}, 1, nil)

	p.DragEnter()
	if !p.Dragging() {
		t.Error("Dragging() = false after DragEnter")
	}
	p.DragLeave()
	if p.Dragging() {
		t.Error("Dragging() = true after DragLeave")
	}

	p.DragEnter()
	p.Drop(File{Name: "first.txt"}, File{Name: "ignored.txt"})
	if p.Dragging() {
		t.Error("Dragging() = true after Drop")
	}
	p.DragEnter()
	p.Drop(File{Name: "second.md"})

	f, ok := p.File()
	if !ok || f.Name != "second.md" {
		t.Errorf("File() = %+v, want second.md", f)
	}
	if p.Name() != "second" {
		t.Errorf("Name() = %q, want second", p.Name())
	}

	p.DragEnter()
	p.Drop()
	if f, _ := p.File(); f.Name != "second.md" {
		t.Error("empty drop replaced the pending file")
	}
	if p.Dragging() {
		t.Error("empty drop did not clear the drag state")
	}
}

func TestPipeline_SubmitSuccess(t *testing.T) {
	gw := &fakeGateway{}
	ref := &fakeRefresher{}
	rec := notify.NewRecorder()
	p := New(gw, 3, ref, WithNotifier(rec))

	p.Pick(File{Name: "lease.pdf", Data: []byte("%PDF-1.4 lease")})
	p.SetName(" Lease 2024 ")
	p.Tags().Add(vault.Tag{ID: 2, Name: "home"})

	doc, err := p.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if doc.ID != 42 {
		t.Errorf("doc = %+v", doc)
	}

	s := gw.sent[0]
	if s.doc.Name != "Lease 2024" || s.doc.Folder != 3 || s.doc.FileName != "lease.pdf" {
		t.Errorf("sent = %+v", s.doc)
	}
	if s.doc.FileType != "application/pdf" {
		t.Errorf("file type = %q, want application/pdf", s.doc.FileType)
	}
	if len(s.doc.Tags) != 1 || s.doc.Tags[0] != 2 {
		t.Errorf("tags = %v, want [2]", s.doc.Tags)
	}
	if s.body != "%PDF-1.4 lease" {
		t.Errorf("body = %q", s.body)
	}

	if _, ok := p.File(); ok || p.Name() != "" || p.Tags().Len() != 0 {
		t.Error("input not cleared after success")
	}
	if len(ref.mutations) != 1 || ref.mutations[0] != (store.Mutation{Kind: store.DocumentUploaded, FolderID: 3}) {
		t.Errorf("mutations = %+v", ref.mutations)
	}
	if last, _ := rec.Last(); last.Message != "Document uploaded successfully!" {
		t.Errorf("notification = %+v", last)
	}
}

func TestPipeline_FailurePreservesInput(t *testing.T) {
	gw := &fakeGateway{err: &vault.Error{StatusCode: 413, Message: "too large"}}
	ref := &fakeRefresher{}
	rec := notify.NewRecorder()
	p := New(gw, 3, ref, WithNotifier(rec))

	p.Pick(File{Name: "big.bin", Data: []byte{0, 1, 2}})
	p.SetName("big")
	p.Tags().Add(vault.Tag{ID: 9, Name: "x"})

	_, err := p.Submit(context.Background())
	var apiErr *vault.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 413 {
		t.Fatalf("err = %v, want the gateway error", err)
	}
	if f, ok := p.File(); !ok || f.Name != "big.bin" {
		t.Error("file lost after failure")
	}
	if p.Name() != "big" || p.Tags().Len() != 1 {
		t.Error("name or tags lost after failure")
	}
	if p.Uploading() {
		t.Error("Uploading() still true after failure")
	}
	if len(ref.mutations) != 0 {
		t.Error("refreshed after a failed upload")
	}
	if last, _ := rec.Last(); last.Kind != notify.Error || last.Message != "Upload failed. Please try again." {
		t.Errorf("notification = %+v", last)
	}
}

func TestPipeline_UnauthorizedIsNotNotified(t *testing.T) {
	gw := &fakeGateway{err: &vault.Error{StatusCode: 401, Message: "Invalid token."}}
	rec := notify.NewRecorder()
	var hooked []error
	p := New(gw, 3, &fakeRefresher{}, WithNotifier(rec), WithUnauthorized(func(err error) {
		hooked = append(hooked, err)
	}))
	p.Pick(File{Name: "w2.pdf", Data: []byte("%PDF-1.4")})

	_, err := p.Submit(context.Background())
	if !vault.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if len(hooked) != 1 {
		t.Errorf("hook calls = %d, want 1", len(hooked))
	}
	if n := rec.Count(notify.Error); n != 0 {
		t.Errorf("error notifications = %d, want 0: %+v", n, rec.All())
	}
	if _, ok := p.File(); !ok {
		t.Error("file lost after a rejected token")
	}
}

func TestPipeline_UploadingBlocksResubmit(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{})}
	p := New(gw, 3, nil)
	p.Pick(File{Name: "a.txt", Data: []byte("a")})

	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background())
		errc <- err
	}()
	for gw.count() == 0 {
		runtime.Gosched()
	}

	if !p.Uploading() {
		t.Error("Uploading() = false during upload")
	}
	if _, err := p.Submit(context.Background()); !errors.Is(err, ErrUploading) {
		t.Errorf("err = %v, want ErrUploading", err)
	}
	close(gw.gate)
	if err := <-errc; err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if f.Name != "notes.txt" || string(f.Data) != "hi" {
		t.Errorf("File = %+v", f)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}
