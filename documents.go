package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

const documentsAPIPath = "/documents/"

func documentPath(id int) string {
	return fmt.Sprintf("/documents/%d/", id)
}

// NewDocument is an upload request.
type NewDocument struct {
	Name     string
	Folder   int
	FileName string
	FileType string
	Content  io.Reader
	Tags     []int
}

// ListDocuments retrieves documents. A nil query lists everything.
func (c *Client) ListDocuments(ctx context.Context, q *DocumentQuery) ([]Document, error) {
	var result list[Document]
	if err := c.doRequest(ctx, http.MethodGet, documentsAPIPath, q.values(), nil, &result); err != nil {
		return nil, wrapError(err, "ListDocuments")
	}
	return result.Results, nil
}

// GetDocument retrieves a single document by ID.
func (c *Client) GetDocument(ctx context.Context, id int) (*Document, error) {
	var result Document
	if err := c.doRequest(ctx, http.MethodGet, documentPath(id), nil, nil, &result); err != nil {
		return nil, wrapError(err, "GetDocument")
	}
	return &result, nil
}

// UploadDocument creates a document from a multipart upload.
func (c *Client) UploadDocument(ctx context.Context, doc NewDocument) (*Document, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("UploadDocument: create file part: %w", err)
	}
	if _, err := io.Copy(part, doc.Content); err != nil {
		return nil, fmt.Errorf("UploadDocument: copy file: %w", err)
	}
	fields := [][2]string{
		{"name", doc.Name},
		{"folder", strconv.Itoa(doc.Folder)},
		{"file_type", doc.FileType},
	}
	for _, id := range doc.Tags {
		fields = append(fields, [2]string{"tags", strconv.Itoa(id)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("UploadDocument: write %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("UploadDocument: close multipart: %w", err)
	}

	fullURL, err := c.buildURL(documentsAPIPath, nil)
	if err != nil {
		return nil, wrapError(err, "UploadDocument")
	}
	req, err := c.newRequest(ctx, http.MethodPost, fullURL, &buf)
	if err != nil {
		return nil, wrapError(err, "UploadDocument")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result Document
	if err := c.do(req, &result); err != nil {
		return nil, wrapError(err, "UploadDocument")
	}
	return &result, nil
}

// UpdateDocument applies a partial update to a document.
func (c *Client) UpdateDocument(ctx context.Context, id int, u DocumentUpdate) (*Document, error) {
	var result Document
	if err := c.doRequest(ctx, http.MethodPatch, documentPath(id), nil, u, &result); err != nil {
		return nil, wrapError(err, "UpdateDocument")
	}
	return &result, nil
}

// DeleteDocument deletes a document.
func (c *Client) DeleteDocument(ctx context.Context, id int) error {
	if err := c.doRequest(ctx, http.MethodDelete, documentPath(id), nil, nil, nil); err != nil {
		return wrapError(err, "DeleteDocument")
	}
	return nil
}

// DownloadDocument fetches the document content. The caller must close the
// returned body.
func (c *Client) DownloadDocument(ctx context.Context, id int) (io.ReadCloser, error) {
	fullURL, err := c.buildURL(documentPath(id)+"download/", nil)
	if err != nil {
		return nil, wrapError(err, "DownloadDocument")
	}
	req, err := c.newRequest(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, wrapError(err, "DownloadDocument")
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.send(req)
	if err != nil {
		return nil, wrapError(err, "DownloadDocument")
	}
	return resp.Body, nil
}
