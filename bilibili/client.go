// Package bilibili implements the platform client against the Bilibili web
// API: video metadata, DASH stream URL resolution, and creator upload
// listing.
package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	bili_archiver "bili-archiver"
	"bili-archiver/generic"
)

const (
	DefaultBaseURL = "https://api.bilibili.com"
	// fnvalDASH requests the DASH format, i.e. separate video and audio
	// streams.
	fnvalDASH = "16"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.bilibili.com"
)

var videoIDPattern = regexp.MustCompile(`^BV[0-9A-Za-z]{10}$`)

// ValidateVideoID checks that id looks like a BV-format video ID.
func ValidateVideoID(id string) error {
	if !videoIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", bili_archiver.ErrInvalidVideoID, id)
	}
	return nil
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

type Client struct {
	http       *http.Client
	baseURL    string
	credential bili_archiver.Credential
}

var _ bili_archiver.PlatformClient = (*Client)(nil)

func NewClient(credential bili_archiver.Credential, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		credential: credential,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the envelope every Bilibili API endpoint uses.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type staffEntry struct {
	MID   int64  `json:"mid"`
	Title string `json:"title"`
	Name  string `json:"name"`
	Face  string `json:"face"`
}

type viewData struct {
	BVID     string `json:"bvid"`
	CID      int64  `json:"cid"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	PubDate  int64  `json:"pubdate"`
	Duration int    `json:"duration"`
	Pic      string `json:"pic"`
	TName    string `json:"tname"`
	Owner    struct {
		MID  int64  `json:"mid"`
		Name string `json:"name"`
		Face string `json:"face"`
	} `json:"owner"`
	Staff []staffEntry `json:"staff"`
}

func (c *Client) GetVideoInfo(ctx context.Context, id string) (*bili_archiver.VideoItem, error) {
	data, err := c.view(ctx, id)
	if err != nil {
		return nil, err
	}
	item := &bili_archiver.VideoItem{
		ID:              data.BVID,
		Title:           data.Title,
		Description:     data.Desc,
		PublishedAt:     time.Unix(data.PubDate, 0),
		DurationSeconds: data.Duration,
		CoverURL:        data.Pic,
		Category:        data.TName,
		Owner: bili_archiver.Creator{
			Name:      data.Owner.Name,
			ID:        data.Owner.MID,
			AvatarURL: data.Owner.Face,
		},
		Staff: generic.None[[]bili_archiver.CastMember](),
	}
	// An absent staff list means the uploader worked alone; VideoItem.Cast()
	// handles that case
	if len(data.Staff) > 0 {
		cast := make([]bili_archiver.CastMember, 0, len(data.Staff))
		for _, s := range data.Staff {
			cast = append(cast, bili_archiver.CastMember{
				Name:      s.Name,
				Role:      s.Title,
				ID:        s.MID,
				AvatarURL: s.Face,
			})
		}
		item.Staff = generic.Some(cast)
	}
	return item, nil
}

type playURLData struct {
	Dash struct {
		Video []struct {
			BaseURL string `json:"baseUrl"`
		} `json:"video"`
		Audio []struct {
			BaseURL string `json:"baseUrl"`
		} `json:"audio"`
	} `json:"dash"`
}

func (c *Client) GetStreamURLs(ctx context.Context, id string) (bili_archiver.StreamURLs, error) {
	view, err := c.view(ctx, id)
	if err != nil {
		return bili_archiver.StreamURLs{}, err
	}
	query := url.Values{}
	query.Set("bvid", id)
	query.Set("cid", strconv.FormatInt(view.CID, 10))
	query.Set("fnval", fnvalDASH)
	var data playURLData
	if err := c.getJSON(ctx, "/x/player/playurl", query, &data); err != nil {
		return bili_archiver.StreamURLs{}, err
	}
	if len(data.Dash.Video) == 0 || len(data.Dash.Audio) == 0 {
		return bili_archiver.StreamURLs{}, fmt.Errorf("no dash streams for %v", id)
	}
	// The first entry in each list is the highest quality available to this
	// account
	return bili_archiver.StreamURLs{
		Video: data.Dash.Video[0].BaseURL,
		Audio: data.Dash.Audio[0].BaseURL,
	}, nil
}

type spaceSearchData struct {
	List struct {
		VList []struct {
			BVID string `json:"bvid"`
		} `json:"vlist"`
	} `json:"list"`
}

// ListRecentUploads returns the BV IDs of a creator's most recent uploads,
// newest first.
func (c *Client) ListRecentUploads(ctx context.Context, creatorID int64) ([]string, error) {
	query := url.Values{}
	query.Set("mid", strconv.FormatInt(creatorID, 10))
	query.Set("ps", "30")
	query.Set("pn", "1")
	query.Set("order", "pubdate")
	var data spaceSearchData
	if err := c.getJSON(ctx, "/x/space/arc/search", query, &data); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data.List.VList))
	for _, v := range data.List.VList {
		ids = append(ids, v.BVID)
	}
	return ids, nil
}

func (c *Client) view(ctx context.Context, id string) (*viewData, error) {
	if err := ValidateVideoID(id); err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("bvid", id)
	var data viewData
	if err := c.getJSON(ctx, "/x/web-interface/view", query, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	if cookie := c.credential.Cookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %v: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %v: unexpected status %v", path, resp.Status)
	}
	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("GET %v: %w", path, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("GET %v: api error %d: %v", path, envelope.Code, envelope.Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("GET %v: %w", path, err)
	}
	return nil
}

// FetchHeaders are the request headers stream downloads need; the CDN rejects
// requests without a Bilibili referer.
func (c *Client) FetchHeaders() map[string]string {
	headers := map[string]string{
		"User-Agent": userAgent,
		"Referer":    referer,
	}
	if cookie := c.credential.Cookie(); cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}
