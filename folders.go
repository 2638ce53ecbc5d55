package vault

import (
	"context"
	"fmt"
	"net/http"
)

const foldersAPIPath = "/folders/"

func folderPath(id int) string {
	return fmt.Sprintf("/folders/%d/", id)
}

type nameBody struct {
	Name string `json:"name"`
}

// ListFolders retrieves all folders with their embedded document summaries.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var result list[Folder]
	if err := c.doRequest(ctx, http.MethodGet, foldersAPIPath, nil, nil, &result); err != nil {
		return nil, wrapError(err, "ListFolders")
	}
	return result.Results, nil
}

// GetFolder retrieves a folder with its full document list.
func (c *Client) GetFolder(ctx context.Context, id int) (*Folder, error) {
	var result Folder
	if err := c.doRequest(ctx, http.MethodGet, folderPath(id), nil, nil, &result); err != nil {
		return nil, wrapError(err, "GetFolder")
	}
	return &result, nil
}

// CreateFolder creates a folder.
func (c *Client) CreateFolder(ctx context.Context, name string) (*Folder, error) {
	var result Folder
	if err := c.doRequest(ctx, http.MethodPost, foldersAPIPath, nil, nameBody{Name: name}, &result); err != nil {
		return nil, wrapError(err, "CreateFolder")
	}
	return &result, nil
}

// UpdateFolder renames a folder.
func (c *Client) UpdateFolder(ctx context.Context, id int, name string) (*Folder, error) {
	var result Folder
	if err := c.doRequest(ctx, http.MethodPut, folderPath(id), nil, nameBody{Name: name}, &result); err != nil {
		return nil, wrapError(err, "UpdateFolder")
	}
	return &result, nil
}

// DeleteFolder deletes a folder. The server deletes its documents too.
func (c *Client) DeleteFolder(ctx context.Context, id int) error {
	if err := c.doRequest(ctx, http.MethodDelete, folderPath(id), nil, nil, nil); err != nil {
		return wrapError(err, "DeleteFolder")
	}
	return nil
}
