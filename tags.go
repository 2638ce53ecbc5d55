package vault

import (
	"context"
	"net/http"
)

const tagsAPIPath = "/tags/"

// ListTags retrieves all tags of the user.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var result list[Tag]
	if err := c.doRequest(ctx, http.MethodGet, tagsAPIPath, nil, nil, &result); err != nil {
		return nil, wrapError(err, "ListTags")
	}
	return result.Results, nil
}

// CreateTag creates a tag. Creation is not idempotent on the server.
func (c *Client) CreateTag(ctx context.Context, name string) (*Tag, error) {
	var result Tag
	if err := c.doRequest(ctx, http.MethodPost, tagsAPIPath, nil, nameBody{Name: name}, &result); err != nil {
		return nil, wrapError(err, "CreateTag")
	}
	return &result, nil
}
