// Package mrserver implements the host-server integration against a
// Movie Robot style management API: library path configuration, scraper
// settings, and user notifications.
package mrserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	bili_archiver "bili-archiver"
)

// adminUID is the user every notification is delivered to.
const adminUID = 1

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

type Client struct {
	http      *http.Client
	baseURL   string
	accessKey string
}

var _ bili_archiver.HostServer = (*Client)(nil)

func NewClient(baseURL string, accessKey string, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type mediaPathsData struct {
	Paths []struct {
		Path string `json:"target_dir"`
		Type string `json:"type"`
	} `json:"paths"`
}

func (c *Client) GetMediaPaths(ctx context.Context) ([]bili_archiver.MediaPath, error) {
	var data mediaPathsData
	if err := c.get(ctx, "/api/config/get_media_path", &data); err != nil {
		return nil, err
	}
	paths := make([]bili_archiver.MediaPath, 0, len(data.Paths))
	for _, p := range data.Paths {
		paths = append(paths, bili_archiver.MediaPath{Path: p.Path, Type: p.Type})
	}
	return paths, nil
}

type scraperConfigData struct {
	UsePersonNFO bool   `json:"use_cn_person_name"`
	PersonsRoot  string `json:"person_nfo_path"`
}

func (c *Client) GetCastPreference(ctx context.Context) (bili_archiver.CastPreference, error) {
	var data scraperConfigData
	if err := c.get(ctx, "/api/config/get_scraper_config", &data); err != nil {
		return bili_archiver.CastPreference{}, err
	}
	return bili_archiver.CastPreference{
		Enabled:     data.UsePersonNFO && data.PersonsRoot != "",
		PersonsRoot: data.PersonsRoot,
	}, nil
}

func (c *Client) SendTemplatedNotification(ctx context.Context, n bili_archiver.Notification) error {
	return c.post(ctx, "/api/notify/send_by_template", map[string]interface{}{
		"to_uid":     adminUID,
		"title":      n.Title,
		"body":       n.Body,
		"link_url":   n.LinkURL,
		"pic_url":    n.PosterURL,
		"to_channel": "all",
	})
}

func (c *Client) SendSystemNotification(ctx context.Context, title string, message string) error {
	return c.post(ctx, "/api/notify/send_system_message", map[string]interface{}{
		"to_uid":  adminUID,
		"title":   title,
		"message": message,
	})
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	query := url.Values{}
	query.Set("access_key", c.accessKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("access_key", c.accessKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+query.Encode(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%v %v: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%v %v: unexpected status %v", req.Method, req.URL.Path, resp.Status)
	}
	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%v %v: %w", req.Method, req.URL.Path, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("%v %v: api error %d: %v", req.Method, req.URL.Path, envelope.Code, envelope.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%v %v: %w", req.Method, req.URL.Path, err)
		}
	}
	return nil
}
