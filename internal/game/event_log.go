package game

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize       = 1024                   // Ring buffer size
	MaxEventsPerSec       = 5000                   // Global rate limit
	MaxEventsPerSession   = 200                    // Per-session rate limit per second
	BatchFlushSize        = 64                     // Events per batch write
	BatchFlushInterval    = 100 * time.Millisecond // How often to flush
	SessionLimiterCleanup = 5 * time.Minute        // Idle per-session limiters are dropped after this
)

// EventLog is a bounded, rate-limited game event log. Sessions emit from
// their tick goroutines; a background writer appends JSONL batches to disk.
// When the ring is full the oldest events are overwritten.
type EventLog struct {
	mu     sync.Mutex
	buffer [EventBufferSize]Event
	head   uint64 // next sequence to write
	tail   uint64 // next sequence to flush

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*limiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file *os.File
	out  *bufio.Writer

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
	writtenCount atomic.Uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// EventLogStats is a point-in-time view for monitoring.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Pending uint64 `json:"pending"`
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and starts the writer. An empty path keeps
// events in memory only (they are still counted).
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		el.file = file
		el.out = bufio.NewWriter(file)
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes what is buffered and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		if el.file != nil {
			_ = el.out.Flush()
			_ = el.file.Close()
		}
	})
}

// Emit appends an event. It returns false when the log is stopped or the
// event was rate limited.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.SessionID != "" && !el.sessionLimiter(event.SessionID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	if el.head-el.tail >= EventBufferSize {
		el.tail++
		el.droppedCount.Add(1)
	}
	event.Sequence = el.head
	el.buffer[el.head%EventBufferSize] = event
	el.head++
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and emits an event in one call.
func (el *EventLog) EmitSimple(eventType EventType, sessionID string, tick uint64, payload any) bool {
	if el == nil {
		return false
	}
	return el.Emit(NewEvent(eventType, sessionID, tick, payload))
}

func (el *EventLog) sessionLimiter(sessionID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.sessionLimiters.Load(sessionID); ok {
		e := v.(*limiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(MaxEventsPerSession, MaxEventsPerSession/4)}
	entry.lastUsed.Store(now)
	actual, _ := el.sessionLimiters.LoadOrStore(sessionID, entry)
	return actual.(*limiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SessionLimiterCleanup).UnixNano()
			el.sessionLimiters.Range(func(key, value any) bool {
				if value.(*limiterEntry).lastUsed.Load() < cutoff {
					el.sessionLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.tail < el.head && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.tail%EventBufferSize])
		el.tail++
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []Event) {
	if el.out == nil {
		el.writtenCount.Add(uint64(len(batch)))
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = el.out.Write(data)
		_ = el.out.WriteByte('\n')
		el.writtenCount.Add(1)
	}
	_ = el.out.Flush()
}

// Stats returns counters for the debug endpoint.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.head - el.tail
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Written: el.writtenCount.Load(),
		Pending: pending,
	}
}
