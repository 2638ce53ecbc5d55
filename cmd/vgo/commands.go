package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/download"
	"github.com/jason-riddle/vault-go/internal/dropzone"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/search"
	"github.com/jason-riddle/vault-go/internal/store"
	"github.com/jason-riddle/vault-go/internal/upload"
)

// DocumentWithTagNames represents a document with tag names resolved
type DocumentWithTagNames struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	File      string   `json:"file"`
	FileType  string   `json:"file_type"`
	Folder    int      `json:"folder"`
	CreatedAt string   `json:"created_at,omitempty"`
	Tags      []int    `json:"tags"`
	TagNames  []string `json:"tag_names"`
}

// FolderOutput is a folder with its documents
type FolderOutput struct {
	ID            int                    `json:"id"`
	Name          string                 `json:"name"`
	DocumentCount int                    `json:"document_count"`
	Documents     []DocumentWithTagNames `json:"documents,omitempty"`
}

// ViewOutput represents the output of the ls command
type ViewOutput struct {
	Route   string         `json:"route"`
	Folders []FolderOutput `json:"folders,omitempty"`
	Folder  *FolderOutput  `json:"folder,omitempty"`
	Tags    []vault.Tag    `json:"tags"`
}

// SearchOutput represents the output of the search command
type SearchOutput struct {
	Query   string                 `json:"query"`
	Tags    []int                  `json:"tags"`
	Mode    string                 `json:"mode"`
	Count   int                    `json:"count"`
	Results []DocumentWithTagNames `json:"results"`
}

// convertDocToOutput resolves the tag names of doc against snap
func convertDocToOutput(doc vault.Document, snap store.Snapshot) DocumentWithTagNames {
	out := DocumentWithTagNames{
		ID:       doc.ID,
		Name:     doc.Name,
		File:     doc.File,
		FileType: doc.FileType,
		Folder:   doc.Folder,
		Tags:     doc.Tags,
		TagNames: snap.TagNames(doc.Tags),
	}
	if out.Tags == nil {
		out.Tags = []int{}
	}
	if !doc.CreatedAt.IsZero() {
		out.CreatedAt = doc.CreatedAt.String()
	}
	return out
}

func convertFolderToOutput(f vault.Folder, snap store.Snapshot, withDocs bool) FolderOutput {
	out := FolderOutput{ID: f.ID, Name: f.Name, DocumentCount: len(f.Documents)}
	if withDocs {
		out.Documents = make([]DocumentWithTagNames, 0, len(f.Documents))
		for _, d := range f.Documents {
			out.Documents = append(out.Documents, convertDocToOutput(d, snap))
		}
	}
	return out
}

// stringList is a repeatable string flag
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("vgo "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parseID(kind, s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID format: %s", kind, s)
	}
	return id, nil
}

// refresh loads the current route. A folder that no longer exists sends the
// route back to the dashboard.
func (a *app) refresh(ctx context.Context) (store.Snapshot, error) {
	err := a.sess.Refresh(ctx)
	route := a.sess.Store.Route()
	if err != nil && vault.IsNotFound(err) && route.IsFolder() {
		a.logger.WarnContext(ctx, "Current folder no longer exists, returning to the dashboard", "route", route)
		err = a.sess.Navigate(ctx, store.Dashboard())
	}
	if err != nil {
		return store.Snapshot{}, err
	}
	snap, ok := a.sess.Store.View()
	if !ok {
		return store.Snapshot{}, errors.New("view is not loaded")
	}
	return snap, nil
}

// view prints the current route from the applied snapshot, refetching it
// when it is not current.
func (a *app) view(ctx context.Context) error {
	snap, ok := a.sess.Store.View()
	if !ok {
		var err error
		if snap, err = a.refresh(ctx); err != nil {
			return err
		}
	}
	out := ViewOutput{Route: snap.Scope.String(), Tags: snap.Tags}
	if out.Tags == nil {
		out.Tags = []vault.Tag{}
	}
	if f, ok := snap.Folder(); ok {
		fo := convertFolderToOutput(f, snap, true)
		out.Folder = &fo
	} else {
		out.Folders = make([]FolderOutput, 0, len(snap.Folders))
		for _, f := range snap.Folders {
			out.Folders = append(out.Folders, convertFolderToOutput(f, snap, false))
		}
	}
	return outputJSON(a.stdout, out)
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if _, err := a.refresh(ctx); err != nil {
		return fmt.Errorf("failed to list: %w", err)
	}
	return a.view(ctx)
}

func cmdChangeRoute(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vgo cd <dashboard|folder-id>")
	}
	var scope store.Scope
	switch arg := args[0]; arg {
	case "dashboard", "/", "..":
		scope = store.Dashboard()
	default:
		if id, err := strconv.Atoi(arg); err == nil {
			arg = "folder:" + strconv.Itoa(id)
		}
		s, err := store.ParseScope(arg)
		if err != nil {
			return err
		}
		scope = s
	}
	if err := a.sess.Navigate(ctx, scope); err != nil {
		return fmt.Errorf("failed to open %s: %w", scope, err)
	}
	return a.view(ctx)
}

func cmdMakeFolder(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vgo mkdir <name>")
	}
	a.sess.Modal.OpenCreateFolder()
	a.sess.Modal.SetName(strings.Join(args, " "))
	if err := a.sess.Modal.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return a.view(ctx)
}

func cmdRenameFolder(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: vgo rename <folder-id> <name>")
	}
	id, err := parseID("folder", args[0])
	if err != nil {
		return err
	}
	f, err := a.client.GetFolder(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get folder %d: %w", id, err)
	}
	a.sess.Modal.OpenEditFolder(*f)
	a.sess.Modal.SetName(strings.Join(args[1:], " "))
	if err := a.sess.Modal.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return a.view(ctx)
}

func cmdRemoveFolder(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vgo rmdir <folder-id>")
	}
	id, err := parseID("folder", args[0])
	if err != nil {
		return err
	}
	f, err := a.client.GetFolder(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get folder %d: %w", id, err)
	}
	a.sess.Modal.OpenDeleteFolder(*f)
	if err := a.sess.Modal.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return a.view(ctx)
}

func (a *app) uploadTarget(ctx context.Context) (*upload.Pipeline, error) {
	if _, err := a.refresh(ctx); err != nil {
		return nil, err
	}
	p, ok := a.sess.Upload()
	if !ok {
		return nil, errors.New("uploads need a folder, use vgo cd <folder-id> first")
	}
	return p, nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("upload")
	name := fs.String("name", "", "Document name (default: file name without extension)")
	var tags stringList
	fs.Var(&tags, "tag", "Tag name, created if missing (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vgo upload [-name n] [-tag t]... <file>")
	}

	p, err := a.uploadTarget(ctx)
	if err != nil {
		return err
	}
	f, err := upload.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	p.Pick(f)
	if *name != "" {
		p.SetName(*name)
	}
	if _, err := a.sess.Tags.ResolveAll(ctx, tags, p.Tags()); err != nil {
		return err
	}
	doc, err := p.Submit(ctx)
	if err != nil {
		return err
	}
	return outputJSON(a.stdout, convertDocToOutput(*doc, a.sess.Store.Snapshot()))
}

// WatchOutput is printed for every file picked up by watch
type WatchOutput struct {
	Path     string                `json:"path"`
	Document *DocumentWithTagNames `json:"document,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vgo watch <dir>")
	}
	p, err := a.uploadTarget(ctx)
	if err != nil {
		return err
	}

	results := make(chan dropzone.Result)
	printed := make(chan error, 1)
	go func() {
		var werr error
		for r := range results {
			out := WatchOutput{Path: r.Path}
			if r.Err != nil {
				out.Error = r.Err.Error()
			} else {
				d := convertDocToOutput(*r.Document, a.sess.Store.Snapshot())
				out.Document = &d
			}
			if err := outputJSON(a.stdout, out); err != nil && werr == nil {
				werr = err
			}
		}
		printed <- werr
	}()

	err = dropzone.Watch(ctx, args[0], p, dropzone.WithLogger(a.logger), dropzone.WithResults(results))
	close(results)
	if perr := <-printed; err == nil {
		err = perr
	}
	return err
}

func cmdEdit(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("edit")
	name := fs.String("name", "", "New document name")
	var tags stringList
	fs.Var(&tags, "tag", "Tag name replacing the current tags, created if missing (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vgo edit [-name n] [-tag t]... <doc-id>")
	}
	id, err := parseID("document", fs.Arg(0))
	if err != nil {
		return err
	}

	snap, err := a.refresh(ctx)
	if err != nil {
		return err
	}
	doc, err := a.client.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get document %d: %w", id, err)
	}

	m := a.sess.Modal
	m.OpenEditDocument(*doc, snap.TagsByID(doc.Tags))
	if *name != "" {
		m.SetName(*name)
	}
	if len(tags) > 0 {
		m.Selection().Clear()
		if _, err := a.sess.Tags.ResolveAll(ctx, tags, m.Selection()); err != nil {
			m.Cancel()
			return err
		}
	}
	if err := m.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to update document %d: %w", id, err)
	}

	updated, err := a.client.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return outputJSON(a.stdout, convertDocToOutput(*updated, a.sess.Store.Snapshot()))
}

func cmdRemoveDocument(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vgo rm <doc-id>")
	}
	id, err := parseID("document", args[0])
	if err != nil {
		return err
	}
	doc, err := a.client.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get document %d: %w", id, err)
	}
	a.sess.Modal.OpenDeleteDocument(*doc)
	if err := a.sess.Modal.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	return a.view(ctx)
}

func cmdDownload(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("download")
	dir := fs.String("o", "", "Directory to save into (default: download_dir from the config, else the working directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vgo download [-o dir] <doc-id>")
	}
	id, err := parseID("document", fs.Arg(0))
	if err != nil {
		return err
	}
	doc, err := a.client.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get document %d: %w", id, err)
	}

	pipeline := a.sess.Download
	if *dir != "" {
		pipeline = download.New(a.client, download.DirSaver{Dir: *dir},
			download.WithLogger(a.logger),
			download.WithNotifier(a.notify),
			download.WithUnauthorized(a.unauthorized))
	}
	saved, err := pipeline.Download(ctx, *doc)
	if err != nil {
		return err
	}
	return outputJSON(a.stdout, map[string]string{"name": download.FileName(*doc), "path": saved})
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("search")
	var tags stringList
	fs.Var(&tags, "tag", "Only documents with this existing tag (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")

	snap, err := a.refresh(ctx)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(tags))
	for _, name := range tags {
		t, ok := snap.TagByName(name)
		if !ok {
			return fmt.Errorf("unknown tag: %s", name)
		}
		ids = append(ids, t.ID)
	}

	out, err := a.sess.Search.Search(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to search documents: %w", err)
	}
	results := make([]DocumentWithTagNames, len(out.Documents))
	for i, d := range out.Documents {
		results[i] = convertDocToOutput(d, snap)
	}
	return outputJSON(a.stdout, SearchOutput{
		Query:   query,
		Tags:    ids,
		Mode:    search.Mode(out.Documents).String(),
		Count:   len(results),
		Results: results,
	})
}

func cmdTags(ctx context.Context, a *app, args []string) error {
	snap, err := a.refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	tags := snap.Tags
	if tags == nil {
		tags = []vault.Tag{}
	}
	return outputJSON(a.stdout, tags)
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("profile")
	email := fs.String("email", "", "New email")
	first := fs.String("first-name", "", "New first name")
	last := fs.String("last-name", "", "New last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := a.client.GetProfile(ctx)
	if err != nil {
		a.fail(err, "Failed to fetch profile.")
		return err
	}
	if *email == "" && *first == "" && *last == "" {
		return outputJSON(a.stdout, p)
	}

	if *email != "" {
		p.Email = *email
	}
	if *first != "" {
		p.FirstName = *first
	}
	if *last != "" {
		p.LastName = *last
	}
	updated, err := a.client.UpdateProfile(ctx, *p)
	if err != nil {
		a.fail(err, "Failed to update profile.")
		return err
	}
	a.notify.Show(notify.Success, "Profile updated successfully!")
	return outputJSON(a.stdout, updated)
}

func cmdPassword(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vgo passwd <old> <new>")
	}
	if err := a.client.ChangePassword(ctx, args[0], args[1]); err != nil {
		a.fail(err, "Failed to change password.")
		return err
	}
	a.notify.Show(notify.Success, "Password changed successfully!")
	return outputJSON(a.stdout, map[string]bool{"changed": true})
}
