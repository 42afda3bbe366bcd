package anilistclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"plexanibridge/internal/domain"
)

// defaultBatchSize is the batch_requests default named by spec: up to
// 50 save_entry operations coalesced into one GraphQL document.
const defaultBatchSize = 50

// flushInterval bounds how long a save can sit in the buffer before
// going out even if the batch never fills, so a trickle of writes from
// a lightly concurrent sync pass isn't starved indefinitely.
const flushInterval = 250 * time.Millisecond

type batchRequest struct {
	entry domain.AniListListEntry
	resCh chan error
}

// Batcher coalesces SaveEntry calls into single GraphQL documents of up
// to size mutations apiece. A batch whose document-level request fails
// outright falls back to executing every entry in it one at a time, so
// one bad entry never poisons the rest (spec §4.5's batch_requests
// contract).
type Batcher struct {
	client *Client
	size   int

	mu      sync.Mutex
	pending []batchRequest

	stop chan struct{}
	done chan struct{}
}

// NewBatcher starts a Batcher over client, flushing whenever size saves
// have queued or flushInterval elapses, whichever comes first. Call
// Close once a sync pass is done submitting saves.
func NewBatcher(client *Client, size int) *Batcher {
	if size <= 0 {
		size = defaultBatchSize
	}
	b := &Batcher{client: client, size: size, stop: make(chan struct{}), done: make(chan struct{})}
	go b.loop()
	return b
}

func (b *Batcher) loop() {
	defer close(b.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			b.flushAll(context.Background())
			return
		case <-ticker.C:
			b.flushAll(context.Background())
		}
	}
}

// Save enqueues entry for the batcher's next flush and blocks until
// that flush resolves, returning this entry's own result.
func (b *Batcher) Save(ctx context.Context, entry domain.AniListListEntry) error {
	req := batchRequest{entry: entry, resCh: make(chan error, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, req)
	var flush []batchRequest
	if len(b.pending) >= b.size {
		flush = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if flush != nil {
		go b.execute(context.Background(), flush)
	}

	select {
	case err := <-req.resCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the background flush loop, flushing anything still
// buffered before returning.
func (b *Batcher) Close() {
	close(b.stop)
	<-b.done
}

func (b *Batcher) flushAll(ctx context.Context) {
	b.mu.Lock()
	flush := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(flush) > 0 {
		b.execute(ctx, flush)
	}
}

func (b *Batcher) execute(ctx context.Context, reqs []batchRequest) {
	entries := make([]domain.AniListListEntry, len(reqs))
	for i, r := range reqs {
		entries[i] = r.entry
	}

	errs := b.client.saveEntriesBatch(ctx, entries)
	for i, r := range reqs {
		r.resCh <- errs[i]
	}
}

// saveEntriesBatch coalesces entries into one GraphQL document of
// aliased SaveMediaListEntry mutations and issues it as a single
// doRequest call. If that document-level request fails, every entry
// falls back to its own SaveEntry call.
func (c *Client) saveEntriesBatch(ctx context.Context, entries []domain.AniListListEntry) []error {
	errs := make([]error, len(entries))
	if len(entries) == 0 {
		return errs
	}
	if len(entries) == 1 {
		errs[0] = c.SaveEntry(ctx, entries[0])
		return errs
	}

	var doc strings.Builder
	doc.WriteString("mutation {\n")
	for i, e := range entries {
		fmt.Fprintf(&doc, "m%d: %s\n", i, saveEntryFragment(e))
	}
	doc.WriteString("}")

	var result map[string]json.RawMessage
	if err := c.doRequest(ctx, doc.String(), nil, &result); err != nil {
		c.logger.Warn("batched save_entry failed, falling back to per-item execution",
			"batch_size", len(entries), "error", err)
		for i, e := range entries {
			errs[i] = c.SaveEntry(ctx, e)
		}
		return errs
	}
	return errs
}

// saveEntryFragment renders one SaveMediaListEntry call with its
// arguments inlined rather than as GraphQL variables, since a batched
// document aliases many calls to the same mutation and variable names
// would collide across them.
func saveEntryFragment(e domain.AniListListEntry) string {
	args := []string{
		fmt.Sprintf("mediaId: %d", e.MediaID),
		fmt.Sprintf("progress: %d", e.Progress),
		fmt.Sprintf("repeat: %d", e.Repeat),
	}
	if e.Status != "" {
		args = append(args, fmt.Sprintf("status: %s", e.Status))
	}
	if e.Score != nil {
		args = append(args, fmt.Sprintf("scoreRaw: %s", strconv.FormatFloat(*e.Score, 'f', -1, 64)))
	}
	if e.Notes != nil {
		args = append(args, fmt.Sprintf("notes: %s", strconv.Quote(*e.Notes)))
	}
	if d := fromTime(e.StartedAt); d != nil {
		args = append(args, fmt.Sprintf("startedAt: {year: %d, month: %d, day: %d}", d.Year, d.Month, d.Day))
	}
	if d := fromTime(e.CompletedAt); d != nil {
		args = append(args, fmt.Sprintf("completedAt: {year: %d, month: %d, day: %d}", d.Year, d.Month, d.Day))
	}
	return fmt.Sprintf("SaveMediaListEntry(%s) { id }", strings.Join(args, ", "))
}
