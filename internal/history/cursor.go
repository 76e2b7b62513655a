// Package history pages through the signed-in user's prediction history.
//
// A Cursor moves between three states:
//
//	Idle --Begin--> Fetching --Complete--> Idle | Exhausted
//	                Fetching --Fail------> Idle
//
// Exhausted is terminal. At most one fetch is in flight per cursor.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vidpredict/internal/prediction"
)

var (
	// ErrBusy is returned when a fetch is already in flight.
	ErrBusy = errors.New("history fetch already in progress")
	// ErrExhausted is returned once the server has no further pages.
	ErrExhausted = errors.New("history exhausted")
)

type State int

const (
	Idle State = iota
	Fetching
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Lister fetches one page. *prediction.Client satisfies it.
type Lister interface {
	List(ctx context.Context, page, perPage int) (prediction.Page, error)
}

// PageCache receives every page the cursor accepts.
type PageCache interface {
	SavePage(userID string, page prediction.Page) error
}

type Cursor struct {
	mu      sync.Mutex
	lister  Lister
	perPage int

	page    int
	items   []prediction.Prediction
	state   State
	lastErr error
	// gen invalidates results of fetches started before a Reset.
	gen int

	cache     PageCache
	cacheUser func() string
	cacheErr  func(error)
}

type Option func(*Cursor)

func WithPerPage(n int) Option {
	return func(c *Cursor) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithPageCache writes each accepted page to cache under the id returned by user.
// Cache failures are reported to onErr and never fail the fetch.
func WithPageCache(cache PageCache, user func() string, onErr func(error)) Option {
	return func(c *Cursor) {
		c.cache = cache
		c.cacheUser = user
		c.cacheErr = onErr
	}
}

func New(lister Lister, opts ...Option) *Cursor {
	c := &Cursor{lister: lister, page: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ticket identifies one fetch started by Begin.
type Ticket struct {
	Page int
	gen  int
}

// Begin moves Idle to Fetching and returns the page to request.
// ok is false when a fetch is in flight or the cursor is exhausted.
func (c *Cursor) Begin() (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return Ticket{}, false
	}
	c.state = Fetching
	return Ticket{Page: c.page, gen: c.gen}, true
}

// Complete applies the result of the fetch identified by t and returns the
// newly appended items. Results for stale tickets are ignored.
func (c *Cursor) Complete(t Ticket, p prediction.Page) []prediction.Prediction {
	c.mu.Lock()
	if c.state != Fetching || t.gen != c.gen || t.Page != c.page {
		c.mu.Unlock()
		return nil
	}
	c.lastErr = nil

	if len(p.Items) == 0 {
		c.state = Exhausted
		c.mu.Unlock()
		return nil
	}

	added := append([]prediction.Prediction(nil), p.Items...)
	c.items = append(c.items, added...)
	// next_page equal to the requested page is the server's end marker. A
	// missing or backwards next page is treated the same way so the cursor
	// never revisits a page.
	if p.NextPage <= t.Page {
		c.state = Exhausted
	} else {
		c.page = p.NextPage
		c.state = Idle
	}
	cache, user, onErr := c.cache, c.cacheUser, c.cacheErr
	c.mu.Unlock()

	if cache != nil && user != nil {
		if id := user(); id != "" {
			if p.CurrentPage == 0 {
				p.CurrentPage = t.Page
			}
			if err := cache.SavePage(id, p); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
	return added
}

// Fail returns the cursor to Idle so the same page can be retried.
func (c *Cursor) Fail(t Ticket, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Fetching || t.gen != c.gen {
		return
	}
	c.lastErr = err
	c.state = Idle
}

// Fetch performs the request for a ticket returned by Begin without touching
// cursor state; pass the result to Complete or Fail.
func (c *Cursor) Fetch(ctx context.Context, t Ticket) (prediction.Page, error) {
	if c.lister == nil {
		return prediction.Page{}, fmt.Errorf("history cursor has no lister")
	}
	return c.lister.List(ctx, t.Page, c.perPage)
}

// FetchNext fetches the next page synchronously.
func (c *Cursor) FetchNext(ctx context.Context) ([]prediction.Prediction, error) {
	t, ok := c.Begin()
	if !ok {
		if c.State() == Exhausted {
			return nil, ErrExhausted
		}
		return nil, ErrBusy
	}
	page, err := c.Fetch(ctx, t)
	if err != nil {
		c.Fail(t, err)
		return nil, err
	}
	return c.Complete(t, page), nil
}

// Items returns a copy of everything accumulated so far.
func (c *Cursor) Items() []prediction.Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]prediction.Prediction(nil), c.items...)
}

// Page is the next page that will be requested.
func (c *Cursor) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cursor) Exhausted() bool { return c.State() == Exhausted }

// LastError is the error of the most recent failed fetch, cleared by the next success.
func (c *Cursor) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Reset discards everything and starts again from page 1. A fetch still in
// flight is orphaned and its result dropped.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.page = 1
	c.items = nil
	c.state = Idle
	c.lastErr = nil
}
