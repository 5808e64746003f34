// Package restapi reads the chat backend's non-realtime endpoints.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"communitychat/models"
)

// ErrUnexpectedStatus is wrapped into errors for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// SearchLimit caps the number of videos returned for a mention query.
const SearchLimit = 8

// Client calls the REST API with the session's bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the API rooted at baseURL. A nil httpClient
// gets one with the given timeout.
func NewClient(baseURL, token string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type onlineResponse struct {
	Count int `json:"count"`
}

type videosResponse struct {
	Videos []models.Video `json:"videos"`
}

// RecentMessages returns the latest room messages, oldest first.
func (c *Client) RecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp messagesResponse
	if err := c.get(ctx, "/chat/messages", q, &resp); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return resp.Messages, nil
}

// OnlineCount returns the number of users currently in the room.
func (c *Client) OnlineCount(ctx context.Context) (int, error) {
	var resp onlineResponse
	if err := c.get(ctx, "/chat/online", nil, &resp); err != nil {
		return 0, fmt.Errorf("online count: %w", err)
	}
	return resp.Count, nil
}

// SearchVideos looks up catalog videos matching query.
func (c *Client) SearchVideos(ctx context.Context, query string) ([]models.Video, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(SearchLimit))
	var resp videosResponse
	if err := c.get(ctx, "/videos/search", q, &resp); err != nil {
		return nil, fmt.Errorf("search videos: %w", err)
	}
	if resp.Videos == nil {
		resp.Videos = []models.Video{}
	}
	return resp.Videos, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
