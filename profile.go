package vault

import (
	"context"
	"net/http"
)

const (
	profileAPIPath        = "/profile/"
	changePasswordAPIPath = "/change-password/"
)

// GetProfile retrieves the signed-in user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var result Profile
	if err := c.doRequest(ctx, http.MethodGet, profileAPIPath, nil, nil, &result); err != nil {
		return nil, wrapError(err, "GetProfile")
	}
	return &result, nil
}

// UpdateProfile replaces the editable profile fields.
func (c *Client) UpdateProfile(ctx context.Context, p Profile) (*Profile, error) {
	var result Profile
	if err := c.doRequest(ctx, http.MethodPut, profileAPIPath, nil, p, &result); err != nil {
		return nil, wrapError(err, "UpdateProfile")
	}
	return &result, nil
}

// ChangePassword changes the user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := PasswordChange{OldPassword: oldPassword, NewPassword: newPassword}
	if err := c.doRequest(ctx, http.MethodPut, changePasswordAPIPath, nil, body, nil); err != nil {
		return wrapError(err, "ChangePassword")
	}
	return nil
}
