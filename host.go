package bili_archiver

import (
	"context"
	"errors"
	"strings"
)

var ErrNoMediaPath = errors.New("no media path configured")

// MediaPath is one library path as configured on the host media server.
type MediaPath struct {
	Path string
	Type string
}

// CastPreference is the host's cast-metadata scraping configuration.
type CastPreference struct {
	Enabled     bool
	PersonsRoot string
}

// Notification is the rich templated completion message sent to the user.
type Notification struct {
	Title     string
	Body      string
	LinkURL   string
	PosterURL string
}

// A HostServer is the media-library server the pipeline integrates with: it
// supplies library configuration and delivers user notifications.
type HostServer interface {
	GetMediaPaths(ctx context.Context) ([]MediaPath, error)
	GetCastPreference(ctx context.Context) (CastPreference, error)
	SendTemplatedNotification(ctx context.Context, n Notification) error
	SendSystemNotification(ctx context.Context, title string, message string) error
}

// SelectMediaPath picks the library root from the host's configured paths:
// a path whose name contains "bilibili" (case-insensitive) wins, then the
// first path of type "movie", then the first path overall.
func SelectMediaPath(paths []MediaPath) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoMediaPath
	}
	var movie string
	for _, p := range paths {
		if strings.Contains(strings.ToLower(p.Path), "bilibili") {
			return p.Path, nil
		}
		if movie == "" && p.Type == "movie" {
			movie = p.Path
		}
	}
	if movie != "" {
		return movie, nil
	}
	return paths[0].Path, nil
}
