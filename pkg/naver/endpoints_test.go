package naver

import (
	"net/url"
	"testing"

	"cafenote/pkg/config"
	"cafenote/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointsFromDefaults(t *testing.T) {
	e := EndpointsFromConfig(config.DefaultConfig().Naver)

	list, err := url.Parse(e.ArticleListURL("123", "4", 2, 0))
	require.NoError(t, err)
	assert.Equal(t, "apis.naver.com", list.Host)
	assert.Equal(t, "/cafe-web/cafe-boardlist-api/v1/cafes/123/menus/4/articles", list.Path)
	assert.Equal(t, "2", list.Query().Get("page"))
	assert.Equal(t, "15", list.Query().Get("pageSize"))
	assert.Equal(t, "L", list.Query().Get("viewType"))

	assert.Equal(t, "https://cafe.naver.com/f-e/cafes/123/menus/4", e.ArticleReferer("123", "4"))
	assert.Equal(t, "https://note.naver.com/json/write/form?targetUserId=a%2Bb", e.FormURL("a+b"))
	assert.Equal(t, "https://note.naver.com/json/write/send", e.SendURL())
	assert.Equal(t, "https://note.naver.com/json/write/captcha?targetUserId=x", e.CaptchaURL("x"))
}

func TestEndpointsTrimTrailingSlash(t *testing.T) {
	cfg := config.DefaultConfig().Naver
	cfg.NoteBaseURL = "http://127.0.0.1:8080/"
	assert.Equal(t, "http://127.0.0.1:8080/json/write/send", EndpointsFromConfig(cfg).SendURL())
}

func TestParseCafeURL(t *testing.T) {
	cafe, menu, err := ParseCafeURL("https://cafe.naver.com/f-e/cafes/31103664/menus/1?viewType=L")
	require.NoError(t, err)
	assert.Equal(t, "31103664", cafe)
	assert.Equal(t, "1", menu)

	_, _, err = ParseCafeURL("https://cafe.naver.com/somecafe")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
