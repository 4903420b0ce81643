package bilibili

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	bili_archiver "bili-archiver"
)

const testVideoID = "BV1xx411c7mD"

func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestValidateVideoID(t *testing.T) {
	assert := assert_.New(t)
	assert.NoError(ValidateVideoID("BV1xx411c7mD"))
	for _, id := range []string{"", "BV123", "av12345678", "BV1xx411c7mD1", "1xx411c7mDBV"} {
		assert.ErrorIs(ValidateVideoID(id), bili_archiver.ErrInvalidVideoID, id)
	}
}

func TestGetVideoInfo(t *testing.T) {
	assert := assert_.New(t)
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/web-interface/view": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(testVideoID, r.URL.Query().Get("bvid"))
			fmt.Fprint(w, `{"code":0,"message":"0","data":{
				"bvid":"BV1xx411c7mD","cid":1234,"title":"Demo","desc":"About demo",
				"pubdate":1700000000,"duration":125,"pic":"https://example.com/cover.jpg","tname":"知识",
				"owner":{"mid":42,"name":"某人","face":"https://example.com/face.jpg"}
			}}`)
		},
	})
	c := NewClient(bili_archiver.Credential{}, WithBaseURL(server.URL))

	item, err := c.GetVideoInfo(context.Background(), testVideoID)
	assert.NoError(err)
	assert.Equal("Demo", item.Title)
	assert.Equal("2023", item.Year())
	assert.Equal(125, item.DurationSeconds)
	assert.Equal(int64(42), item.Owner.ID)
	// No staff in the response, so the cast falls back to the uploader
	assert.True(item.Staff.IsNone())
	assert.Equal(bili_archiver.RoleUploader, item.Cast()[0].Role)
}

func TestGetVideoInfoWithStaff(t *testing.T) {
	assert := assert_.New(t)
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/web-interface/view": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":0,"message":"0","data":{
				"bvid":"BV1xx411c7mD","title":"Demo","pubdate":1700000000,
				"owner":{"mid":42,"name":"某人"},
				"staff":[{"mid":42,"title":"UP主","name":"某人"},{"mid":43,"title":"出镜","name":"另一人"}]
			}}`)
		},
	})
	c := NewClient(bili_archiver.Credential{}, WithBaseURL(server.URL))

	item, err := c.GetVideoInfo(context.Background(), testVideoID)
	assert.NoError(err)
	assert.True(item.Staff.IsSome())
	cast := item.Cast()
	assert.Len(cast, 2)
	assert.Equal("UP主", cast[0].Role)
	assert.Equal(int64(43), cast[1].ID)
}

func TestGetVideoInfoAPIError(t *testing.T) {
	assert := assert_.New(t)
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/web-interface/view": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":-404,"message":"啥都木有","data":null}`)
		},
	})
	c := NewClient(bili_archiver.Credential{}, WithBaseURL(server.URL))

	_, err := c.GetVideoInfo(context.Background(), testVideoID)
	assert.ErrorContains(err, "-404")
}

func TestGetVideoInfoRejectsMalformedID(t *testing.T) {
	assert := assert_.New(t)
	c := NewClient(bili_archiver.Credential{}, WithBaseURL("http://127.0.0.1:1"))
	// Validation fails before any request is attempted
	_, err := c.GetVideoInfo(context.Background(), "not-an-id")
	assert.ErrorIs(err, bili_archiver.ErrInvalidVideoID)
}

func TestGetStreamURLs(t *testing.T) {
	assert := assert_.New(t)
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/web-interface/view": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":0,"data":{"bvid":"BV1xx411c7mD","cid":1234}}`)
		},
		"/x/player/playurl": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal("1234", r.URL.Query().Get("cid"))
			assert.Equal("16", r.URL.Query().Get("fnval"))
			fmt.Fprint(w, `{"code":0,"data":{"dash":{
				"video":[{"baseUrl":"https://cdn.example.com/v-hi.m4s"},{"baseUrl":"https://cdn.example.com/v-lo.m4s"}],
				"audio":[{"baseUrl":"https://cdn.example.com/a.m4s"}]
			}}}`)
		},
	})
	c := NewClient(bili_archiver.Credential{}, WithBaseURL(server.URL))

	streams, err := c.GetStreamURLs(context.Background(), testVideoID)
	assert.NoError(err)
	assert.Equal("https://cdn.example.com/v-hi.m4s", streams.Video)
	assert.Equal("https://cdn.example.com/a.m4s", streams.Audio)
}

func TestListRecentUploads(t *testing.T) {
	assert := assert_.New(t)
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/space/arc/search": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal("42", r.URL.Query().Get("mid"))
			fmt.Fprint(w, `{"code":0,"data":{"list":{"vlist":[{"bvid":"BV1aa411c7mA"},{"bvid":"BV1bb411c7mB"}]}}}`)
		},
	})
	c := NewClient(bili_archiver.Credential{}, WithBaseURL(server.URL))

	ids, err := c.ListRecentUploads(context.Background(), 42)
	assert.NoError(err)
	assert.Equal([]string{"BV1aa411c7mA", "BV1bb411c7mB"}, ids)
}

func TestCredentialCookieSent(t *testing.T) {
	assert := assert_.New(t)
	var gotCookie string
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/x/web-interface/view": func(w http.ResponseWriter, r *http.Request) {
			gotCookie = r.Header.Get("Cookie")
			fmt.Fprint(w, `{"code":0,"data":{"bvid":"BV1xx411c7mD"}}`)
		},
	})
	c := NewClient(bili_archiver.Credential{SessData: "s3ss", BiliJCT: "jct", BUVID3: "buvid"}, WithBaseURL(server.URL))

	_, err := c.GetVideoInfo(context.Background(), testVideoID)
	assert.NoError(err)
	assert.Equal("SESSDATA=s3ss; bili_jct=jct; buvid3=buvid", gotCookie)
}
