package models

import "time"

// AuthorRecord is one distinct article author found during a crawl
type AuthorRecord struct {
	Nickname       string `json:"nickname"`
	MemberKey      string `json:"memberKey"`
	WriteTimestamp int64  `json:"writeTimestamp"`
	SourceRef      string `json:"sourceRef"`
	SourceName     string `json:"sourceName"`
}

type Source struct {
	ID         int64     `json:"id"`
	CafeID     string    `json:"cafeId"`
	CategoryID string    `json:"categoryId"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ref identifies the source in author records and ledger entries
func (s Source) Ref() string {
	return s.CafeID + "/" + s.CategoryID
}

type LedgerEntry struct {
	MemberKey string    `json:"memberKey"`
	Nickname  string    `json:"nickname"`
	SourceRef string    `json:"sourceRef"`
	CreatedAt time.Time `json:"createdAt"`
}

type Template struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type SendResults struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}
