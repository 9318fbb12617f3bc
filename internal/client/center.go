package client

import (
	"sync"
	"time"

	"github.com/btouchard/switchboard/internal/wire"
)

// Notification is one committed, user-visible record.
type Notification struct {
	ID        string         `json:"id"`
	Type      wire.Type      `json:"type,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"read"`
	Category  wire.Category  `json:"category"`
	Priority  wire.Priority  `json:"priority"`
	Source    map[string]any `json:"source,omitempty"`
	Key       string         `json:"key"`
}

// Center holds the notification list and the unread counter.
type Center struct {
	mu     sync.RWMutex
	items  []Notification // newest first
	unread int
}

// NewCenter creates an empty notification center.
func NewCenter() *Center {
	return &Center{}
}

func (c *Center) add(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]Notification{n}, c.items...)
	if !n.Read {
		c.unread++
	}
}

// List returns the notifications, newest first.
func (c *Center) List() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notification(nil), c.items...)
}

// Len returns the number of notifications.
func (c *Center) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Unread returns the unread counter.
func (c *Center) Unread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// MarkRead marks one notification read. It reports false if id is unknown.
func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID != id {
			continue
		}
		if !c.items[i].Read {
			c.items[i].Read = true
			c.unread--
		}
		return true
	}
	return false
}

// MarkAllRead marks every notification read and returns how many changed.
func (c *Center) MarkAllRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := 0
	for i := range c.items {
		if !c.items[i].Read {
			c.items[i].Read = true
			changed++
		}
	}
	c.unread = 0
	return changed
}

// Dismiss removes one notification. It reports false if id is unknown.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID != id {
			continue
		}
		if !n.Read {
			c.unread--
		}
		c.items = append(c.items[:i], c.items[i+1:]...)
		return true
	}
	return false
}

// Clear removes every notification.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.unread = 0
}
