// Package session keeps one browser's editable copy of the price book and
// its layout preferences between requests.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
)

// CookieName carries the session id between browser and service.
const CookieName = "ptbb_session"

const (
	// Sessions idle longer than this are dropped during sweeps.
	maxIdle = 12 * time.Hour
	// No sweeping happens while the store stays below this size.
	sweepThreshold = 64
)

// Session is one browser's private working state. All methods are safe
// for concurrent use since echo serves each request on its own goroutine.
type Session struct {
	ID string

	mu         sync.Mutex
	book       pricebook.Book
	mobile     bool
	useDefault bool
}

func newSession() *Session {
	return &Session{
		ID:         uuid.NewString(),
		book:       pricebook.Book{},
		useDefault: true,
	}
}

// Lookup returns the price row stored under a normalized key.
func (s *Session) Lookup(key string) (pricebook.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.book[key]
	return row, ok
}

// SetPrices overwrites the row of an existing key. Unknown keys are not
// created; only products named by the loaded workbook can be edited.
func (s *Session) SetPrices(key string, row pricebook.Row) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.book[key]; !ok {
		return false
	}
	s.book[key] = row
	return true
}

// ReplaceBook swaps in a freshly loaded book, dropping all edits.
func (s *Session) ReplaceBook(book pricebook.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = book
}

// Snapshot returns an independent copy of the current book.
func (s *Session) Snapshot() pricebook.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Clone()
}

// BookSize reports how many price rows the session currently holds.
func (s *Session) BookSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.book)
}

// Mobile reports whether the narrow single-column layout is selected.
func (s *Session) Mobile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mobile
}

func (s *Session) SetMobile(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mobile = on
}

// UseDefault reports whether prices come from the configured default
// workbook rather than an upload.
func (s *Session) UseDefault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useDefault
}

func (s *Session) SetUseDefault(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useDefault = on
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Store hands out sessions keyed by a browser cookie.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Attach returns the session identified by the request cookie, creating a
// fresh one (and setting the cookie) when the request carries none or an
// unknown id. The second result reports whether the session is new.
func (st *Store) Attach(c echo.Context) (*Session, bool) {
	now := time.Now()

	if cookie, err := c.Cookie(CookieName); err == nil {
		st.mu.Lock()
		if e, ok := st.sessions[cookie.Value]; ok {
			e.lastSeen = now
			st.mu.Unlock()
			return e.session, false
		}
		st.mu.Unlock()
	}

	session := newSession()
	st.mu.Lock()
	st.sweepLocked(now)
	st.sessions[session.ID] = &entry{session: session, lastSeen: now}
	st.mu.Unlock()

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session, true
}

// sweepLocked drops sessions idle beyond maxIdle once the store has grown
// past sweepThreshold. It runs only while creating a session, so an idle
// service carries no background goroutines.
func (st *Store) sweepLocked(now time.Time) {
	if len(st.sessions) < sweepThreshold {
		return
	}
	for id, e := range st.sessions {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(st.sessions, id)
		}
	}
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
