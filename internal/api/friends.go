package api

import (
	"context"
	"net/http"
	"time"

	"github.com/avlasenko/talkline/internal/domain"
)

// FriendRequest is a pending incoming friend request.
type FriendRequest struct {
	ID        string       `json:"id"`
	Sender    *domain.User `json:"sender,omitempty"`
	CreatedAt time.Time    `json:"createdAt,omitempty"`
}

// SendFriendRequest asks another user to become a contact.
func (c *Client) SendFriendRequest(ctx context.Context, recipientID string) error {
	body := map[string]string{"recipientId": recipientID}
	return c.do(ctx, http.MethodPost, "/api/v1/friend-requests", body, nil)
}

// PendingFriendRequests lists incoming requests awaiting a decision.
func (c *Client) PendingFriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var out []FriendRequest
	if err := c.do(ctx, http.MethodGet, "/api/v1/friend-requests/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptFriendRequest accepts a pending request.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/friend-requests/"+requestID+"/accept", nil, nil)
}

// RejectFriendRequest rejects a pending request.
func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/friend-requests/"+requestID+"/reject", nil, nil)
}

// Friends lists the current user's contacts.
func (c *Client) Friends(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/friends", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
