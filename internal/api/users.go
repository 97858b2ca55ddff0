package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/avlasenko/talkline/internal/domain"
)

// ErrEmptyQuery is returned for a blank search term before any request is
// dispatched.
var ErrEmptyQuery = errors.New("search query cannot be empty")

// Me fetches the current user's profile. A 401 here means the token is
// invalid or expired.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchUsers finds users matching the query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	var out []domain.User
	path := "/api/v1/users/search?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
