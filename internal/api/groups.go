package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/avlasenko/talkline/internal/domain"
)

// ErrEmptyGroupName is returned before dispatch when a group is created
// without a name.
var ErrEmptyGroupName = errors.New("group name cannot be empty")

// ErrNoMembers is returned before dispatch when a group is created without
// any members.
var ErrNoMembers = errors.New("group needs at least one member")

// GroupSpec describes a group to create.
type GroupSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AvatarURL   string   `json:"avatarUrl"`
	IsPublic    bool     `json:"isPublic"`
	MemberIDs   []string `json:"memberIds"`
}

// Group is a chat group as returned by the backend.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsPublic    bool   `json:"isPublic,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, spec GroupSpec) (*Group, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, ErrEmptyGroupName
	}
	if len(spec.MemberIDs) == 0 {
		return nil, ErrNoMembers
	}
	var out Group
	if err := c.do(ctx, http.MethodPost, "/api/v1/groups", spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GroupDetails fetches a single group.
func (c *Client) GroupDetails(ctx context.Context, groupID string) (*Group, error) {
	var out Group
	if err := c.do(ctx, http.MethodGet, "/api/v1/groups/"+groupID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinGroup adds the current user to a group.
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID+"/join", nil, nil)
}

// LeaveGroup removes the current user from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID+"/leave", nil, nil)
}

// GroupMembers lists the members of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]domain.User, error) {
	var out []domain.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/groups/"+groupID+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FixGroupParticipants asks the server to repair the participant list of the
// group's conversation after membership drift.
func (c *Client) FixGroupParticipants(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID+"/fix-participants", nil, nil)
}
