package bili_archiver

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidVideoID means the identifier is malformed or unknown to the
	// platform; it is terminal and must never be recorded for retry.
	ErrInvalidVideoID = errors.New("invalid video identifier")
)

// Credential is the validated platform session passed into each pipeline
// invocation. It is constructed once after authentication and replaced
// wholesale on re-authentication; nothing in this module mutates it.
type Credential struct {
	SessData string
	BiliJCT  string
	BUVID3   string
}

// Cookie renders the credential as a Cookie header value, or "" when the
// credential is empty (anonymous access).
func (c Credential) Cookie() string {
	var parts []string
	if c.SessData != "" {
		parts = append(parts, "SESSDATA="+c.SessData)
	}
	if c.BiliJCT != "" {
		parts = append(parts, "bili_jct="+c.BiliJCT)
	}
	if c.BUVID3 != "" {
		parts = append(parts, "buvid3="+c.BUVID3)
	}
	return strings.Join(parts, "; ")
}

// A PlatformClient talks to the remote video platform on behalf of the
// pipeline. Implementations must return ErrInvalidVideoID (possibly wrapped)
// for malformed or unknown identifiers.
type PlatformClient interface {
	// GetVideoInfo fetches the full metadata for one video.
	GetVideoInfo(ctx context.Context, id string) (*VideoItem, error)
	// GetStreamURLs resolves the direct video and audio stream URLs.
	GetStreamURLs(ctx context.Context, id string) (StreamURLs, error)
	// ListRecentUploads returns the identifiers of a creator's most recent
	// uploads, newest first.
	ListRecentUploads(ctx context.Context, creatorID int64) ([]string, error)
}
