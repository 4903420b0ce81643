package bili_archiver

import (
	"fmt"
	"time"

	"bili-archiver/generic"
	"bili-archiver/util"
)

// RoleUploader is the synthetic cast role used when a video has no credited
// staff and the owning creator stands in as the only cast member.
const RoleUploader = "uploader"

// Creator is the account that published a video.
type Creator struct {
	Name      string
	ID        int64
	AvatarURL string
}

// CastMember is one credited person on a video: either an entry from the
// platform's staff list, or the creator fallback (Role == RoleUploader).
type CastMember struct {
	Name      string
	Role      string
	ID        int64
	AvatarURL string
}

// StreamURLs are the resolved direct URLs for the separate video and audio
// streams of a single-part video.
type StreamURLs struct {
	Video string
	Audio string
}

// VideoItem is everything the pipeline knows about one video. It is fetched
// once per processing run and never mutated afterwards.
type VideoItem struct {
	ID          string
	Title       string
	Description string
	PublishedAt time.Time
	// Duration of the video in seconds, as reported by the platform.
	DurationSeconds int
	CoverURL        string
	Category        string
	Owner           Creator
	// Staff is the credited cast list, if the platform provided one. A missing
	// staff list is an expected data shape, not an error.
	Staff generic.Option[[]CastMember]
}

// Year returns the 4-digit year the video was published, e.g. "2023".
func (v *VideoItem) Year() string {
	return v.PublishedAt.Format("2006")
}

// PremiereDate returns the publish date as "2006-01-02".
func (v *VideoItem) PremiereDate() string {
	return v.PublishedAt.Format("2006-01-02")
}

// RuntimeMinutes returns the duration in whole minutes, rounding down.
func (v *VideoItem) RuntimeMinutes() int {
	return v.DurationSeconds / 60
}

// FolderName is the library folder (and media file stem) for this video.
func (v *VideoItem) FolderName() string {
	return fmt.Sprintf("%s (%s)", util.SanitizeFilename(v.Title), v.Year())
}

// Cast returns the effective cast list: the credited staff when present,
// otherwise a single synthetic entry for the creator.
func (v *VideoItem) Cast() []CastMember {
	if v.Staff.IsSome() {
		return v.Staff.Unwrap()
	}
	return []CastMember{{
		Name:      v.Owner.Name,
		Role:      RoleUploader,
		ID:        v.Owner.ID,
		AvatarURL: v.Owner.AvatarURL,
	}}
}

func (v *VideoItem) String() string {
	return fmt.Sprintf("%s [%s]", v.Title, v.ID)
}
