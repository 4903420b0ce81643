package bili_archiver

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSelectMediaPath(t *testing.T) {
	assert := assert_.New(t)

	_, err := SelectMediaPath(nil)
	assert.ErrorIs(err, ErrNoMediaPath)

	// A path named after the platform wins, regardless of type or order
	selected, err := SelectMediaPath([]MediaPath{
		{Path: "/media/movies", Type: "movie"},
		{Path: "/media/Bilibili", Type: "other"},
	})
	assert.NoError(err)
	assert.Equal("/media/Bilibili", selected)

	// Otherwise the first movie path
	selected, err = SelectMediaPath([]MediaPath{
		{Path: "/media/tv", Type: "tv"},
		{Path: "/media/movies", Type: "movie"},
		{Path: "/media/movies2", Type: "movie"},
	})
	assert.NoError(err)
	assert.Equal("/media/movies", selected)

	// Otherwise the first path
	selected, err = SelectMediaPath([]MediaPath{
		{Path: "/media/tv", Type: "tv"},
		{Path: "/media/music", Type: "music"},
	})
	assert.NoError(err)
	assert.Equal("/media/tv", selected)
}

func TestCredentialCookie(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("", Credential{}.Cookie())
	assert.Equal("SESSDATA=s", Credential{SessData: "s"}.Cookie())
	assert.Equal(
		"SESSDATA=s; bili_jct=j; buvid3=b",
		Credential{SessData: "s", BiliJCT: "j", BUVID3: "b"}.Cookie(),
	)
}
