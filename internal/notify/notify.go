// Package notify queues recoverable user-facing notifications per device.
package notify

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Variant selects how a notice is styled.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a transient notification ("toast").
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Poster accepts notices for one device.
type Poster interface {
	Post(title, description string, variant Variant)
}

// Center buffers notices, sharded per device. Each device gets its own
// bounded list so one device's burst cannot evict another's notices.
type Center struct {
	mu      sync.Mutex
	queues  map[string]*list.List
	maxSize int
	logger  *slog.Logger
}

// NewCenter creates a Center keeping at most maxSize notices per device.
func NewCenter(maxSize int, logger *slog.Logger) *Center {
	if maxSize <= 0 {
		maxSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		queues:  make(map[string]*list.List),
		maxSize: maxSize,
		logger:  logger,
	}
}

// Post enqueues a notice for a device, evicting the oldest when full.
func (c *Center) Post(deviceID, title, description string, variant Variant) Notice {
	if variant == "" {
		variant = VariantDefault
	}
	n := Notice{
		ID:          ulid.Make().String(),
		Title:       title,
		Description: description,
		Variant:     variant,
		CreatedAt:   time.Now().UTC(),
	}

	c.mu.Lock()
	l, ok := c.queues[deviceID]
	if !ok {
		l = list.New()
		c.queues[deviceID] = l
	}
	l.PushBack(n)
	for l.Len() > c.maxSize {
		l.Remove(l.Front())
	}
	c.mu.Unlock()

	c.logger.Info("notification posted",
		"device_id", deviceID,
		"title", title,
		"variant", variant,
	)
	return n
}

// Drain removes and returns all pending notices for a device, oldest first.
func (c *Center) Drain(deviceID string) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.queues[deviceID]
	if !ok {
		return nil
	}
	out := make([]Notice, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Notice))
	}
	delete(c.queues, deviceID)
	return out
}

// For returns a Poster bound to one device.
func (c *Center) For(deviceID string) Poster {
	return devicePoster{c: c, deviceID: deviceID}
}

type devicePoster struct {
	c        *Center
	deviceID string
}

func (p devicePoster) Post(title, description string, variant Variant) {
	p.c.Post(p.deviceID, title, description, variant)
}
