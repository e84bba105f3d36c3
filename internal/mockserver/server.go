// Package mockserver is a scriptable stand-in for the cafe board list API and
// the note service, used by tests that exercise the real HTTP client.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Article is one listed post
type Article struct {
	MemberKey string
	Nickname  string
	Written   time.Time
}

// Note is one accepted send
type Note struct {
	MemberKey string
	Content   string
	Token     string
}

// FormStyle selects how the compose form is rendered
type FormStyle int

const (
	FormJSON FormStyle = iota
	FormHTML
)

var articlesPath = regexp.MustCompile(`^/cafe-web/cafe-boardlist-api/v1/cafes/([^/]+)/menus/([^/]+)/articles$`)

// Server simulates the three platform hosts behind one httptest server
type Server struct {
	server *httptest.Server

	mu          sync.RWMutex
	boards      map[string][]Article
	errors      map[string]int
	daily       int
	dailyLimit  int
	rejected    map[string]string
	formStyle   FormStyle
	authCookie  string
	issued      map[string]bool
	notes       []Note
	hits        map[string]int
	tokenSerial int64

	requestCount int32
}

// New starts a server. authCookie, when non-empty, must be present on every
// request or the server answers 401.
func New(authCookie string) *Server {
	m := &Server{
		boards:     make(map[string][]Article),
		errors:     make(map[string]int),
		rejected:   make(map[string]string),
		issued:     make(map[string]bool),
		hits:       make(map[string]int),
		dailyLimit: 50,
		authCookie: authCookie,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cafe-web/", m.handleArticles)
	mux.HandleFunc("/json/write/form", m.handleForm)
	mux.HandleFunc("/json/write/send", m.handleSend)
	mux.HandleFunc("/json/write/captcha", m.handleCaptcha)

	m.server = httptest.NewServer(m.guard(mux))
	return m
}

// URL is the base URL for every platform host
func (m *Server) URL() string {
	return m.server.URL
}

// Close shuts the server down
func (m *Server) Close() {
	m.server.Close()
}

// AddArticles appends posts to a board; pages are served newest first
func (m *Server) AddArticles(cafeID, categoryID string, articles ...Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cafeID + "/" + categoryID
	board := append(m.boards[key], articles...)
	sort.SliceStable(board, func(i, j int) bool { return board[i].Written.After(board[j].Written) })
	m.boards[key] = board
}

// SetError makes a request path answer with code. For article pages the key
// is "cafe/category/page"; for the note service it is the path, e.g.
// "/json/write/send", optionally suffixed with "?memberKey".
func (m *Server) SetError(key string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = code
}

// ClearError removes an error set with SetError
func (m *Server) ClearError(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, key)
}

// SetDailyCount sets today's sent counter
func (m *Server) SetDailyCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = n
}

// DailyCount returns today's sent counter
func (m *Server) DailyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.daily
}

// Reject makes sends to memberKey fail with msg
func (m *Server) Reject(memberKey, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[memberKey] = msg
}

// SetFormStyle switches between JSON and HTML compose forms
func (m *Server) SetFormStyle(s FormStyle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formStyle = s
}

// Notes returns every accepted note in order
func (m *Server) Notes() []Note {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Note(nil), m.notes...)
}

// Hits counts requests per endpoint label: "articles", "form", "send", "captcha"
func (m *Server) Hits(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits[endpoint]
}

// RequestCount returns the total number of requests served
func (m *Server) RequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

func (m *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requestCount, 1)
		if m.authCookie != "" {
			if c, err := r.Cookie(m.authCookie); err != nil || c.Value == "" {
				m.sendError(w, http.StatusUnauthorized, "login required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Server) hit(endpoint string) {
	m.mu.Lock()
	m.hits[endpoint]++
	m.mu.Unlock()
}

func (m *Server) errorFor(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errors[key]
}

func (m *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	match := articlesPath.FindStringSubmatch(r.URL.Path)
	if match == nil {
		http.NotFound(w, r)
		return
	}
	m.hit("articles")

	cafeID, categoryID := match[1], match[2]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 || size < 1 {
		m.sendError(w, http.StatusBadRequest, "page and pageSize are required")
		return
	}

	if code := m.errorFor(fmt.Sprintf("%s/%s/%d", cafeID, categoryID, page)); code > 0 {
		m.sendError(w, code, "board unavailable")
		return
	}

	m.mu.RLock()
	board := m.boards[cafeID+"/"+categoryID]
	start := (page - 1) * size
	var slice []Article
	if start < len(board) {
		end := start + size
		if end > len(board) {
			end = len(board)
		}
		slice = board[start:end]
	}
	m.mu.RUnlock()

	list := make([]map[string]interface{}, 0, len(slice))
	for i, a := range slice {
		list = append(list, map[string]interface{}{
			"type": "ARTICLE",
			"item": map[string]interface{}{
				"articleId": start + i + 1,
				"writerInfo": map[string]interface{}{
					"nickName":  a.Nickname,
					"memberKey": a.MemberKey,
				},
				"writeDateTimestamp": a.Written.UnixMilli(),
			},
		})
	}

	writeJSON(w, map[string]interface{}{
		"result": map[string]interface{}{
			"articleList": list,
			"pageInfo":    map[string]interface{}{"page": page, "pageSize": size},
		},
	})
}

func (m *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	m.hit("form")
	target := r.URL.Query().Get("targetUserId")
	if code := m.errorFor("/json/write/form"); code > 0 {
		m.sendError(w, code, "form unavailable")
		return
	}
	if code := m.errorFor("/json/write/form?" + target); code > 0 {
		m.sendError(w, code, "form unavailable")
		return
	}

	m.mu.Lock()
	m.tokenSerial++
	token := fmt.Sprintf("tok-%d-%s", m.tokenSerial, target)
	m.issued[token] = true
	daily, style := m.daily, m.formStyle
	m.mu.Unlock()

	// a refreshed session cookie, the way the real service rotates it
	http.SetCookie(w, &http.Cookie{Name: "NNB", Value: "refreshed", Path: "/"})

	if style == FormHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><form id="writeForm">
<input type="hidden" name="token" value="%s">
<input type="hidden" name="svcCode" value="0">
<input type="hidden" name="svcType" value="2">
<div class="count" data-today-sent-count="%d"></div>
</form></body></html>`, token, daily)
		return
	}

	writeJSON(w, map[string]interface{}{
		"result": map[string]interface{}{
			"token":          token,
			"svcCode":        "0",
			"svcType":        "2",
			"todaySentCount": daily,
		},
	})
}

func (m *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	m.hit("send")
	if r.Method != http.MethodPost {
		m.sendError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := r.ParseForm(); err != nil {
		m.sendError(w, http.StatusBadRequest, "bad form")
		return
	}
	target := r.PostForm.Get("targetUserId")
	if code := m.errorFor("/json/write/send"); code > 0 {
		m.sendError(w, code, "send unavailable")
		return
	}
	if code := m.errorFor("/json/write/send?" + target); code > 0 {
		m.sendError(w, code, "send unavailable")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token := r.PostForm.Get("token")
	switch {
	case !m.issued[token]:
		writeJSON(w, failure("invalid or reused token", m.daily))
		return
	case m.rejected[target] != "":
		delete(m.issued, token)
		writeJSON(w, failure(m.rejected[target], m.daily))
		return
	case m.daily >= m.dailyLimit:
		delete(m.issued, token)
		writeJSON(w, failure("daily limit exceeded", m.daily))
		return
	}

	delete(m.issued, token)
	m.daily++
	m.notes = append(m.notes, Note{MemberKey: target, Content: r.PostForm.Get("content"), Token: token})
	writeJSON(w, map[string]interface{}{
		"result": map[string]interface{}{
			"resultCode":     "SUCCESS",
			"todaySentCount": m.daily,
		},
	})
}

func (m *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	m.hit("captcha")
	writeJSON(w, map[string]interface{}{"result": map[string]interface{}{"needCaptcha": false}})
}

func failure(msg string, daily int) map[string]interface{} {
	return map[string]interface{}{
		"result": map[string]interface{}{
			"resultCode":     "FAIL",
			"message":        msg,
			"todaySentCount": daily,
		},
	}
}

func (m *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"message": message,
		"status":  strings.ToLower(http.StatusText(code)),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}
