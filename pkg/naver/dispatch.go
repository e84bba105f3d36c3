package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cafenote/pkg/errors"
)

// DispatchResult is the interpreted answer to one send
type DispatchResult struct {
	Success bool
	Message string
	// TodaySentCount is the provider's counter after this send, when reported
	TodaySentCount int
	HasCount       bool
}

// SendNote posts content to memberKey using a form from PrepareForm. Sends
// are never retried: a timed-out POST may still have been delivered.
//
// A transport or HTTP failure is returned as an error. A well-formed reply
// that reports failure comes back as a result with Success false.
func (c *Client) SendNote(ctx context.Context, memberKey, content string, form *FormInfo) (*DispatchResult, error) {
	if form == nil || form.Token == "" {
		return nil, errors.FormUnavailable("send requires a fresh form token")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.Validation("message body is empty")
	}

	values := url.Values{}
	values.Set("targetUserId", memberKey)
	values.Set("content", content)
	values.Set("token", form.Token)
	values.Set("svcCode", form.SvcCode)
	values.Set("svcType", form.SvcType)
	values.Set("isBackup", "1")

	body, err := c.do(ctx, request{
		endpoint: "send",
		method:   http.MethodPost,
		url:      c.endpoints.SendURL(),
		referer:  c.endpoints.NoteReferer(),
		accept:   "application/json",
		form:     values.Encode(),
	})
	if err != nil {
		return nil, err
	}

	result, err := ParseDispatch(body)
	if err != nil {
		c.logFor(ctx).WithFields(map[string]interface{}{
			"member_key":   memberKey,
			"body_preview": previewBody(body),
		}).Debug("Send response is not JSON")
		return nil, err
	}
	return result, nil
}

// ParseDispatch interprets a send reply. Two conventions count as success:
// resultCode "SUCCESS" (top level or under result), or the older isSuccess
// true / resultCode 0 shape.
func ParseDispatch(body []byte) (*DispatchResult, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Parsing(err)
	}
	nested, _ := doc["result"].(map[string]interface{})

	res := &DispatchResult{}
	for _, scope := range []map[string]interface{}{doc, nested} {
		if scope == nil {
			continue
		}
		if isSuccessCode(scope["resultCode"]) {
			res.Success = true
		}
		if b, ok := scope["isSuccess"].(bool); ok && b {
			res.Success = true
		}
		if res.Message == "" {
			for _, key := range []string{"message", "resultMessage"} {
				if msg := stringField(scope, key); msg != "" {
					res.Message = msg
					break
				}
			}
		}
		if !res.HasCount {
			if n, ok := countField(scope, "todaySentCount"); ok {
				res.TodaySentCount, res.HasCount = n, true
			}
		}
	}

	if !res.Success && res.Message == "" {
		res.Message = "provider did not confirm the send"
	}
	return res, nil
}

func isSuccessCode(v interface{}) bool {
	switch code := v.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(code), "SUCCESS")
	case float64:
		return code == 0
	}
	return false
}

// Err turns an unsuccessful result into an upstream error
func (r *DispatchResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return errors.Upstream(0, fmt.Sprintf("send rejected: %s", r.Message))
}
