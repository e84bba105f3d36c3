package naver

import (
	"encoding/json"
	"strconv"
	"strings"

	"cafenote/pkg/models"
)

// ExtractionRule locates the article list inside a page. Rules are tried in
// order and the first one that finds a list wins, even an empty one.
type ExtractionRule struct {
	Name string
	Path []string
}

// DefaultRules covers the board list API shapes seen so far
var DefaultRules = []ExtractionRule{
	{Name: "result.articleList", Path: []string{"result", "articleList"}},
	{Name: "articleList", Path: []string{"articleList"}},
	{Name: "articles", Path: []string{"articles"}},
}

// ExtractAuthors turns a page into author records in page order. It never
// fails: malformed input yields an empty slice. Articles without a member
// key are skipped since nothing downstream can address them.
func ExtractAuthors(page PageResult, source models.Source) []models.AuthorRecord {
	return ExtractAuthorsWith(DefaultRules, page, source)
}

// ExtractAuthorsWith is ExtractAuthors with a custom rule list
func ExtractAuthorsWith(rules []ExtractionRule, page PageResult, source models.Source) []models.AuthorRecord {
	articles := findArticles(rules, page)
	records := make([]models.AuthorRecord, 0, len(articles))

	for _, raw := range articles {
		article, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		item := article
		if nested, ok := article["item"].(map[string]interface{}); ok {
			item = nested
		}

		writer, _ := item["writerInfo"].(map[string]interface{})
		nickname := stringField(writer, "nickName")
		memberKey := stringField(writer, "memberKey")
		if memberKey == "" {
			continue
		}

		records = append(records, models.AuthorRecord{
			Nickname:       nickname,
			MemberKey:      memberKey,
			WriteTimestamp: int64Field(item, "writeDateTimestamp"),
			SourceRef:      source.Ref(),
			SourceName:     source.Name,
		})
	}
	return records
}

// ArticleCount reports how many raw articles the first matching rule found.
// Zero means the board has no more pages.
func ArticleCount(rules []ExtractionRule, page PageResult) int {
	return len(findArticles(rules, page))
}

func findArticles(rules []ExtractionRule, page PageResult) []interface{} {
	if page == nil {
		return nil
	}
	for _, rule := range rules {
		var cur interface{} = map[string]interface{}(page)
		found := true
		for _, key := range rule.Path {
			m, ok := cur.(map[string]interface{})
			if !ok {
				found = false
				break
			}
			if cur, ok = m[key]; !ok || cur == nil {
				found = false
				break
			}
		}
		if !found {
			continue
		}
		if list, ok := cur.([]interface{}); ok {
			return list
		}
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// int64Field reads a millisecond timestamp sent as a number or a string
func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}
