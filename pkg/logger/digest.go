package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher ships aggregated entries to a topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload any) error
}

type DigestConfig struct {
	Interval       time.Duration // flush period
	CountThreshold int           // distinct entries that force a flush
	Topic          string
	Publisher      Publisher
}

// DigestEntry is one distinct error log line and how often it repeated.
type DigestEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// ErrorDigest collapses repeated error logs (a reconnect storm logs the same
// line every few seconds) into counted entries and publishes them periodically.
type ErrorDigest struct {
	cfg     DigestConfig
	mu      sync.Mutex
	entries map[string]*DigestEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewErrorDigest(cfg *DigestConfig) *ErrorDigest {
	c := *cfg
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.CountThreshold <= 0 {
		c.CountThreshold = 100
	}
	d := &ErrorDigest{
		cfg:     c,
		entries: make(map[string]*DigestEntry),
		stop:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *ErrorDigest) Add(level, msg string, fields map[string]any, caller string) {
	now := time.Now()
	key := digestKey(level, msg, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	d.entries[key] = &DigestEntry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(d.entries) >= d.cfg.CountThreshold {
		d.publish(d.drainLocked())
	}
}

// Pending returns the number of distinct entries not yet published.
func (d *ErrorDigest) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *ErrorDigest) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}

func (d *ErrorDigest) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			batch := d.drainLocked()
			d.mu.Unlock()
			d.publish(batch)
		case <-d.stop:
			d.mu.Lock()
			batch := d.drainLocked()
			d.mu.Unlock()
			d.publishSync(batch)
			return
		}
	}
}

func (d *ErrorDigest) drainLocked() []DigestEntry {
	if len(d.entries) == 0 {
		return nil
	}
	out := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	d.entries = make(map[string]*DigestEntry)
	return out
}

func (d *ErrorDigest) publish(batch []DigestEntry) {
	if len(batch) == 0 {
		return
	}
	go d.publishSync(batch)
}

func (d *ErrorDigest) publishSync(batch []DigestEntry) {
	if len(batch) == 0 || d.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
		// the logger cannot log its own publishing failure
		fmt.Fprintf(os.Stderr, "error digest publish failed: %v\n", err)
	}
}

func digestKey(level, msg string, fields map[string]any, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte('|')
	b.WriteString(msg)
	b.WriteByte('|')
	b.WriteString(caller)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, fields[k])
	}
	return b.String()
}
