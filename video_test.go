package bili_archiver

import (
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"bili-archiver/generic"
)

func TestVideoItemDerivedFields(t *testing.T) {
	assert := assert_.New(t)
	v := VideoItem{
		ID:              "BV1xx411c7mD",
		Title:           "What: a/title?",
		PublishedAt:     time.Unix(1700000000, 0).UTC(),
		DurationSeconds: 3599,
	}
	assert.Equal("2023", v.Year())
	assert.Equal("2023-11-14", v.PremiereDate())
	assert.Equal(59, v.RuntimeMinutes())
	// Invalid filename characters are replaced before the year suffix
	assert.Equal("What_ a_title_ (2023)", v.FolderName())
}

func TestVideoItemCastFallback(t *testing.T) {
	assert := assert_.New(t)
	v := VideoItem{
		Owner: Creator{Name: "某人", ID: 42, AvatarURL: "https://example.com/face.jpg"},
		Staff: generic.None[[]CastMember](),
	}
	cast := v.Cast()
	assert.Len(cast, 1)
	assert.Equal("某人", cast[0].Name)
	assert.Equal(RoleUploader, cast[0].Role)
	assert.Equal(int64(42), cast[0].ID)

	v.Staff = generic.Some([]CastMember{{Name: "甲", Role: "UP主", ID: 1}})
	assert.Equal("甲", v.Cast()[0].Name)
	assert.Equal("UP主", v.Cast()[0].Role)
}
