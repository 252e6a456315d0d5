package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a flushed digest somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
}

type DigestConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 1m)
	CountThreshold int           // unique entries before an early flush
	EventType      string        // event type used when publishing
	Publisher      Publisher
}

// DigestEntry is one deduplicated warn/error line.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Digest collapses repeated warnings (an external source failing every
// poll, for instance) into counted entries and publishes them periodically.
type Digest struct {
	config  *DigestConfig
	entries map[string]*DigestEntry
	mutex   sync.Mutex
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDigest(config *DigestConfig) *Digest {
	if config.TimeInterval <= 0 {
		config.TimeInterval = time.Minute
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.EventType == "" {
		config.EventType = "log.digest"
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Digest{
		config:  config,
		entries: make(map[string]*DigestEntry),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(1)
	go d.periodicFlush()

	return d
}

func (d *Digest) Add(level, message string, fields map[string]interface{}, caller string) {
	now := d.now()
	key := digestKey(level, message, fields, caller)

	d.mutex.Lock()
	if entry, exists := d.entries[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	var drained []DigestEntry
	if len(d.entries) >= d.config.CountThreshold {
		drained = d.drainLocked()
	}
	d.mutex.Unlock()

	d.publish(drained)
}

// Pending returns a copy of the not-yet-flushed entries ordered by count, highest first.
func (d *Digest) Pending() []DigestEntry {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	out := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Flush publishes everything collected so far.
func (d *Digest) Flush() {
	d.mutex.Lock()
	drained := d.drainLocked()
	d.mutex.Unlock()

	d.publish(drained)
}

func digestKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

func (d *Digest) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Flush()
		case <-d.ctx.Done():
			d.Flush()
			return
		}
	}
}

func (d *Digest) drainLocked() []DigestEntry {
	if len(d.entries) == 0 {
		return nil
	}

	entries := make([]DigestEntry, 0, len(d.entries))
	for _, entry := range d.entries {
		entries = append(entries, *entry)
	}
	d.entries = make(map[string]*DigestEntry)
	return entries
}

func (d *Digest) publish(entries []DigestEntry) {
	if len(entries) == 0 || d.config.Publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.config.Publisher.Publish(ctx, d.config.EventType, "digest", entries); err != nil {
		// logging here would re-enter the digest
		fmt.Fprintf(os.Stderr, "publish log digest: %v\n", err)
	}
}

func (d *Digest) Close() {
	d.cancel()
	d.wg.Wait()
}
