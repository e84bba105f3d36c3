package naver

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cafenote/pkg/errors"
)

// FormInfo is the single-use descriptor needed to send one note
type FormInfo struct {
	Token          string
	SvcCode        string
	SvcType        string
	TodaySentCount int
	// HasCount is false when the form did not report a counter
	HasCount bool
}

// PrepareForm fetches a fresh compose form for memberKey. The token it
// returns is valid for one send to that recipient only.
func (c *Client) PrepareForm(ctx context.Context, memberKey string) (*FormInfo, error) {
	if memberKey == "" {
		return nil, errors.Validation("member key is required")
	}

	body, err := c.get(ctx, request{
		endpoint: "form",
		url:      c.endpoints.FormURL(memberKey),
		referer:  c.endpoints.NoteReferer(),
		accept:   "application/json, text/html;q=0.9, */*;q=0.8",
	})
	if err != nil {
		return nil, err
	}

	info := ParseForm(body)
	if info.Token == "" {
		c.logFor(ctx).WithFields(map[string]interface{}{
			"member_key":   memberKey,
			"body_preview": previewBody(body),
		}).Debug("Compose form has no token")
		return nil, errors.FormUnavailable("compose form did not include a send token")
	}
	return info, nil
}

// Preflight hits the captcha check the web composer calls before sending.
// Whether the platform requires it is unknown, so callers treat failure as
// advisory.
func (c *Client) Preflight(ctx context.Context, memberKey string) error {
	_, err := c.get(ctx, request{
		endpoint: "preflight",
		url:      c.endpoints.CaptchaURL(memberKey),
		referer:  c.endpoints.NoteReferer(),
		accept:   "application/json",
	})
	return err
}

// ParseForm reads form fields from a JSON body, an HTML page, or failing
// both, from loose text patterns. Missing fields are left empty.
func ParseForm(body []byte) *FormInfo {
	info := &FormInfo{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return info
	}

	if trimmed[0] == '{' && parseFormJSON(trimmed, info) {
		return info
	}
	parseFormHTML(trimmed, info)
	parseFormText(string(trimmed), info)
	return info
}

func parseFormJSON(body []byte, info *FormInfo) bool {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	scopes := []map[string]interface{}{doc}
	if nested, ok := doc["result"].(map[string]interface{}); ok {
		scopes = append([]map[string]interface{}{nested}, scopes...)
	}
	for _, scope := range scopes {
		fillString(&info.Token, stringField(scope, "token"))
		fillString(&info.SvcCode, stringField(scope, "svcCode"))
		fillString(&info.SvcType, stringField(scope, "svcType"))
		if !info.HasCount {
			if n, ok := countField(scope, "todaySentCount"); ok {
				info.TodaySentCount, info.HasCount = n, true
			}
		}
	}
	return info.Token != ""
}

func parseFormHTML(body []byte, info *FormInfo) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	input := func(name string) string {
		v, _ := doc.Find(`input[name="` + name + `"]`).First().Attr("value")
		return strings.TrimSpace(v)
	}
	fillString(&info.Token, input("token"))
	fillString(&info.SvcCode, input("svcCode"))
	fillString(&info.SvcType, input("svcType"))

	if info.HasCount {
		return
	}
	if v, ok := doc.Find("[data-today-sent-count]").First().Attr("data-today-sent-count"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.TodaySentCount, info.HasCount = n, true
			return
		}
	}
	if n, err := strconv.Atoi(input("todaySentCount")); err == nil {
		info.TodaySentCount, info.HasCount = n, true
	}
}

var (
	tokenPattern = regexp.MustCompile(`["']?token["']?\s*[:=]\s*["']([^"']+)["']`)
	countPattern = regexp.MustCompile(`["']?todaySentCount["']?\s*[:=]\s*["']?(\d+)`)
	svcPattern   = regexp.MustCompile(`["']?(svcCode|svcType)["']?\s*[:=]\s*["']([^"']*)["']`)
)

func parseFormText(text string, info *FormInfo) {
	if info.Token == "" {
		if m := tokenPattern.FindStringSubmatch(text); m != nil {
			info.Token = m[1]
		}
	}
	for _, m := range svcPattern.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case "svcCode":
			fillString(&info.SvcCode, m[2])
		case "svcType":
			fillString(&info.SvcType, m[2])
		}
	}
	if !info.HasCount {
		if m := countPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				info.TodaySentCount, info.HasCount = n, true
			}
		}
	}
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func countField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
