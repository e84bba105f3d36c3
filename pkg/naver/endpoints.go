package naver

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"cafenote/pkg/config"
	"cafenote/pkg/errors"
)

const (
	// ArticleListPath is the board list API path for one cafe menu
	ArticleListPath = "/cafe-web/cafe-boardlist-api/v1/cafes/%s/menus/%s/articles"

	// FormPath returns the compose form for one recipient
	FormPath = "/json/write/form"

	// SendPath accepts a composed note
	SendPath = "/json/write/send"

	// CaptchaPath is the optional pre-send check
	CaptchaPath = "/json/write/captcha"

	// DefaultPageSize matches what the cafe web client requests
	DefaultPageSize = 15
)

// Endpoints holds the three platform hosts
type Endpoints struct {
	API  string
	Cafe string
	Note string
}

// EndpointsFromConfig reads base URLs from the naver config section
func EndpointsFromConfig(cfg config.NaverConfig) Endpoints {
	return Endpoints{
		API:  strings.TrimRight(cfg.APIBaseURL, "/"),
		Cafe: strings.TrimRight(cfg.CafeBaseURL, "/"),
		Note: strings.TrimRight(cfg.NoteBaseURL, "/"),
	}
}

// ArticleListURL builds the newest-first article page URL
func (e Endpoints) ArticleListURL(cafeID, categoryID string, page, pageSize int) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("sortBy", "TIME")
	params.Set("viewType", "L")

	path := fmt.Sprintf(ArticleListPath, url.PathEscape(cafeID), url.PathEscape(categoryID))
	return e.API + path + "?" + params.Encode()
}

// ArticleReferer is the menu page a browser would be on when listing articles
func (e Endpoints) ArticleReferer(cafeID, categoryID string) string {
	return fmt.Sprintf("%s/f-e/cafes/%s/menus/%s", e.Cafe, cafeID, categoryID)
}

// FormURL is the compose form for memberKey
func (e Endpoints) FormURL(memberKey string) string {
	return e.Note + FormPath + "?" + url.Values{"targetUserId": {memberKey}}.Encode()
}

// SendURL is where composed notes are posted
func (e Endpoints) SendURL() string {
	return e.Note + SendPath
}

// CaptchaURL is the pre-send check for memberKey
func (e Endpoints) CaptchaURL(memberKey string) string {
	return e.Note + CaptchaPath + "?" + url.Values{"targetUserId": {memberKey}}.Encode()
}

// NoteReferer is the compose page origin
func (e Endpoints) NoteReferer() string {
	return e.Note + "/"
}

var cafeURLPattern = regexp.MustCompile(`cafe\.naver\.com/f-e/cafes/(\d+)/menus/(\d+)`)

// ParseCafeURL extracts cafe and menu ids from a cafe menu URL
func ParseCafeURL(raw string) (cafeID, categoryID string, err error) {
	m := cafeURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", errors.Validation(fmt.Sprintf("not a cafe menu URL: %q (want cafe.naver.com/f-e/cafes/{id}/menus/{id})", raw))
	}
	return m[1], m[2], nil
}
