package naver

import (
	"context"
	"encoding/json"

	"cafenote/pkg/errors"
)

// PageResult is the decoded body of one article list page. Its shape varies
// between API versions, so it stays untyped until ExtractAuthors walks it.
type PageResult map[string]interface{}

// FetchArticlePage fetches one newest-first page of a cafe menu
func (c *Client) FetchArticlePage(ctx context.Context, cafeID, categoryID string, page int) (PageResult, error) {
	if cafeID == "" || categoryID == "" {
		return nil, errors.Validation("cafe id and category id are required")
	}
	if page < 1 {
		return nil, errors.Validation("page numbers start at 1")
	}

	body, err := c.get(ctx, request{
		endpoint: "articles",
		url:      c.endpoints.ArticleListURL(cafeID, categoryID, page, c.pageSize),
		referer:  c.endpoints.ArticleReferer(cafeID, categoryID),
		accept:   "application/json, text/plain, */*",
	})
	if err != nil {
		return nil, err
	}

	var result PageResult
	if err := json.Unmarshal(body, &result); err != nil {
		c.logFor(ctx).WithFields(map[string]interface{}{
			"cafe_id":      cafeID,
			"category_id":  categoryID,
			"page":         page,
			"body_preview": previewBody(body),
		}).Debug("Article page is not JSON")
		return nil, errors.Parsing(err)
	}
	return result, nil
}
