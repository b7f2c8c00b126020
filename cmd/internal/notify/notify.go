// Package notify queues transient, dismissable notices per tab session.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"cmsconsole/cmd/internal/ids"
)

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notice is one transient message shown to the admin.
type Notice struct {
	ID    string    `json:"id"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Publisher receives every pushed notice for live delivery.
type Publisher interface {
	Publish(tabID string, n Notice)
}

// Options configures a Center.
type Options struct {
	// MaxPerTab caps queued notices per tab; the oldest are dropped first.
	MaxPerTab int

	// Observe, if set, is called for every pushed notice.
	Observe func(Level)
}

// Center holds pending notices until a page renders (drains) them or the admin
// dismisses them.
type Center struct {
	log  *slog.Logger
	opts Options
	ids  *ids.Generator
	now  func() time.Time

	mu     sync.Mutex
	queues map[string][]Notice
	pub    Publisher
}

// NewCenter constructs an empty Center.
func NewCenter(opts Options, log *slog.Logger) *Center {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxPerTab <= 0 {
		opts.MaxPerTab = 20
	}
	return &Center{
		log:    log,
		opts:   opts,
		ids:    ids.NewGenerator(),
		now:    func() time.Time { return time.Now().UTC() },
		queues: make(map[string][]Notice),
	}
}

// SetPublisher attaches a live publisher. Pass nil to detach.
func (c *Center) SetPublisher(p Publisher) {
	c.mu.Lock()
	c.pub = p
	c.mu.Unlock()
}

// Push queues a notice for tabID and publishes it.
func (c *Center) Push(tabID string, level Level, text string) Notice {
	id, err := c.ids.Next()
	if err != nil {
		c.log.Warn("notify.id.fail", "err", err)
	}
	n := Notice{ID: id, Level: level, Text: text, At: c.now()}

	c.mu.Lock()
	q := append(c.queues[tabID], n)
	if over := len(q) - c.opts.MaxPerTab; over > 0 {
		q = append([]Notice(nil), q[over:]...)
	}
	c.queues[tabID] = q
	pub := c.pub
	c.mu.Unlock()

	if c.opts.Observe != nil {
		c.opts.Observe(level)
	}
	if pub != nil {
		pub.Publish(tabID, n)
	}
	return n
}

// Success queues a success notice.
func (c *Center) Success(tabID, text string) Notice { return c.Push(tabID, LevelSuccess, text) }

// Error queues an error notice.
func (c *Center) Error(tabID, text string) Notice { return c.Push(tabID, LevelError, text) }

// Drain returns and clears every pending notice for tabID, oldest first.
func (c *Center) Drain(tabID string) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[tabID]
	delete(c.queues, tabID)
	return q
}

// Pending returns a copy of the queued notices without clearing them.
func (c *Center) Pending(tabID string) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.queues[tabID]...)
}

// Dismiss removes one notice. It reports whether the notice was pending.
func (c *Center) Dismiss(tabID, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[tabID]
	for i, n := range q {
		if n.ID != id {
			continue
		}
		q = append(q[:i:i], q[i+1:]...)
		if len(q) == 0 {
			delete(c.queues, tabID)
		} else {
			c.queues[tabID] = q
		}
		return true
	}
	return false
}

// Forget drops everything queued for tabID.
func (c *Center) Forget(tabID string) {
	c.mu.Lock()
	delete(c.queues, tabID)
	c.mu.Unlock()
}
