// Package vaulttest provides an in-memory vault API server for tests.
package vaulttest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jason-riddle/vault-go"
)

// Token is the bearer token the server accepts.
const Token = "test-token"

// Server is a fake of the vault REST API backed by maps.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	folders  map[int]vault.Folder
	docs     map[int]vault.Document
	content  map[int][]byte
	tags     map[int]vault.Tag
	profile  vault.Profile
	password string
	requests []string
}

// NewServer starts a Server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		nextID:   1,
		folders:  make(map[int]vault.Folder),
		docs:     make(map[int]vault.Document),
		content:  make(map[int][]byte),
		tags:     make(map[int]vault.Tag),
		profile:  vault.Profile{ID: 1, Username: "ana", Email: "ana@example.com"},
		password: "secret",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /folders/{$}", s.listFolders)
	mux.HandleFunc("POST /folders/{$}", s.createFolder)
	mux.HandleFunc("GET /folders/{id}/{$}", s.getFolder)
	mux.HandleFunc("PUT /folders/{id}/{$}", s.updateFolder)
	mux.HandleFunc("DELETE /folders/{id}/{$}", s.deleteFolder)
	mux.HandleFunc("GET /documents/{$}", s.listDocuments)
	mux.HandleFunc("POST /documents/{$}", s.uploadDocument)
	mux.HandleFunc("GET /documents/{id}/{$}", s.getDocument)
	mux.HandleFunc("PATCH /documents/{id}/{$}", s.updateDocument)
	mux.HandleFunc("DELETE /documents/{id}/{$}", s.deleteDocument)
	mux.HandleFunc("GET /documents/{id}/download/{$}", s.downloadDocument)
	mux.HandleFunc("GET /tags/{$}", s.listTags)
	mux.HandleFunc("POST /tags/{$}", s.createTag)
	mux.HandleFunc("GET /profile/{$}", s.getProfile)
	mux.HandleFunc("PUT /profile/{$}", s.updateProfile)
	mux.HandleFunc("PUT /change-password/{$}", s.changePassword)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

// Requests returns "METHOD path" of every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// AddFolder stores a folder and returns its id.
func (s *Server) AddFolder(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idLocked()
	s.folders[id] = vault.Folder{ID: id, Name: name}
	return id
}

// AddTag stores a tag and returns its id.
func (s *Server) AddTag(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idLocked()
	s.tags[id] = vault.Tag{ID: id, Name: name}
	return id
}

// AddDocument stores a document with content and returns its id.
func (s *Server) AddDocument(folder int, name, fileName string, content []byte, tags ...int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idLocked()
	s.docs[id] = vault.Document{
		ID:     id,
		Name:   name,
		File:   "/media/documents/" + fileName,
		Folder: folder,
		Tags:   append([]int{}, tags...),
	}
	s.content[id] = content
	return id
}

// Document returns a stored document.
func (s *Server) Document(id int) (vault.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

// Folder returns a stored folder without its documents.
func (s *Server) Folder(id int) (vault.Folder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	return f, ok
}

// TagCount returns the number of stored tags.
func (s *Server) TagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

func (s *Server) idLocked() int {
	id := s.nextID
	s.nextID++
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func (s *Server) folderLocked(id int) vault.Folder {
	f := s.folders[id]
	f.Documents = []vault.Document{}
	for _, d := range s.sortedDocsLocked() {
		if d.Folder == id {
			f.Documents = append(f.Documents, d)
		}
	}
	return f
}

func (s *Server) sortedDocsLocked() []vault.Document {
	docs := make([]vault.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.folders))
	for id := range s.folders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]vault.Folder, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.folderLocked(id))
	}
	writeJSON(w, http.StatusOK, out)
}

type nameBody struct {
	Name string `json:"name"`
}

func decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body nameBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field may not be blank."}})
		return "", false
	}
	return body.Name, true
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idLocked()
	s.folders[id] = vault.Folder{ID: id, Name: name}
	writeJSON(w, http.StatusCreated, s.folderLocked(id))
}

func (s *Server) getFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[id]; !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, s.folderLocked(id))
}

func (s *Server) updateFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	f.Name = name
	s.folders[id] = f
	writeJSON(w, http.StatusOK, s.folderLocked(id))
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[id]; !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	delete(s.folders, id)
	for docID, d := range s.docs {
		if d.Folder == id {
			delete(s.docs, docID)
			delete(s.content, docID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	var tags []int
	for _, part := range strings.Split(q.Get("tags"), ",") {
		if id, err := strconv.Atoi(part); err == nil {
			tags = append(tags, id)
		}
	}
	folder, _ := strconv.Atoi(q.Get("folder"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []vault.Document{}
	for _, d := range s.sortedDocsLocked() {
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		if folder > 0 && d.Folder != folder {
			continue
		}
		match := true
		for _, t := range tags {
			if !d.HasTag(t) {
				match = false
			}
		}
		if match {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	folder, _ := strconv.Atoi(r.FormValue("folder"))
	var tags []int
	for _, v := range r.MultipartForm.Value["tags"] {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tag")
			return
		}
		tags = append(tags, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[folder]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"folder": {fmt.Sprintf("Invalid pk %q - object does not exist.", r.FormValue("folder"))}})
		return
	}
	for _, t := range tags {
		if _, ok := s.tags[t]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"tags": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", t)}})
			return
		}
	}
	id := s.idLocked()
	d := vault.Document{
		ID:       id,
		Name:     r.FormValue("name"),
		File:     "/media/documents/" + path.Base(header.Filename),
		FileType: r.FormValue("file_type"),
		Folder:   folder,
		Tags:     append([]int{}, tags...),
	}
	s.docs[id] = d
	s.content[id] = data
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name *string `json:"name"`
		Tags *[]int  `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if body.Name != nil {
		d.Name = *body.Name
	}
	if body.Tags != nil {
		d.Tags = append([]int{}, *body.Tags...)
	}
	s.docs[id] = d
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	delete(s.docs, id)
	delete(s.content, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	data, ok := s.content[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vault.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idLocked()
	s.tags[id] = vault.Tag{ID: id, Name: name}
	writeJSON(w, http.StatusCreated, s.tags[id])
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.profile)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p vault.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.profile.ID
	p.Username = s.profile.Username
	s.profile = p
	writeJSON(w, http.StatusOK, s.profile)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var body vault.PasswordChange
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if body.OldPassword != s.password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Wrong password."}})
		return
	}
	s.password = body.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"status": "password set"})
}
