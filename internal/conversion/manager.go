package conversion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
	"github.com/thefass/ub-tools/internal/metrics"
	"github.com/thefass/ub-tools/internal/record"
)

// schedulerInterval paces the background scheduling loop.
const schedulerInterval = 16 * time.Millisecond

// Result is the outcome of converting one downloaded response.
type Result struct {
	Item    harvester.HarvestableItem
	Records []*record.Record
	Totals  harvester.RunTotals

	// ItemErrors carries failures of individual items; the remaining
	// items of the same response still produce records.
	ItemErrors []error

	// Err is set when the whole response could not be processed.
	Err error
}

// Future resolves to a Result once the conversion task ran.
type Future struct {
	done   chan struct{}
	result Result
}

// Wait blocks until the task finished or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type task struct {
	item   harvester.HarvestableItem
	body   []byte
	future *Future
}

// Manager runs conversion tasks on a bounded pool. Submissions never
// block; tasks queue up FIFO and at most MaxConversionTasks execute
// concurrently.
type Manager struct {
	global    harvester.GlobalParams
	augmenter *Augmenter
	builder   *Builder
	logger    *zap.Logger

	mu       sync.Mutex
	queue    []*task
	inFlight int

	stop    chan struct{}
	stopped chan struct{}
	tasks   sync.WaitGroup
}

// NewManager creates a Manager and starts its scheduling loop.
func NewManager(global harvester.GlobalParams, augmenter *Augmenter, builder *Builder, logger *zap.Logger) *Manager {
	m := &Manager{
		global:    global,
		augmenter: augmenter,
		builder:   builder,
		logger:    logger,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go m.loop()
	return m
}

// Submit enqueues the conversion of one downloaded response and
// returns immediately.
func (m *Manager) Submit(item harvester.HarvestableItem, body []byte) *Future {
	future := &Future{done: make(chan struct{})}

	m.mu.Lock()
	m.queue = append(m.queue, &task{item: item, body: body, future: future})
	queued := len(m.queue)
	m.mu.Unlock()

	m.logger.Debug("conversion task queued",
		zap.String("url", item.URL),
		zap.Int("queue_length", queued))
	return future
}

// Stop drains the queue, waits for running tasks and shuts the loop
// down. No submissions may happen after Stop.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.stopped
	m.tasks.Wait()
}

func (m *Manager) loop() {
	defer close(m.stopped)
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()

	for {
		m.dispatch()

		select {
		case <-ticker.C:
		case <-m.stop:
			// Drain: keep dispatching until the queue is empty.
			for !m.idleQueue() {
				m.dispatch()
				time.Sleep(schedulerInterval)
			}
			return
		}
	}
}

func (m *Manager) dispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.inFlight < m.global.MaxConversionTasks && len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.inFlight++
		m.tasks.Add(1)
		metrics.ConversionStarted()
		go m.run(next)
	}
}

func (m *Manager) idleQueue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) == 0
}

func (m *Manager) run(t *task) {
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		metrics.ConversionFinished()
		m.tasks.Done()
	}()

	t.future.result = m.convert(t)
	close(t.future.done)
}

// convert processes one response body: parse, filter, augment and
// build, isolating item-level failures from each other.
func (m *Manager) convert(t *task) Result {
	result := Result{Item: t.item}
	journal := t.item.Journal

	items, err := ParseWebResponse(t.body)
	if err != nil {
		result.Err = err
		return result
	}

	ctx := context.Background()
	for _, raw := range items {
		meta := ConvertItem(raw)

		if field, excluded := Excluded(meta, journal); excluded {
			m.logger.Debug("item excluded",
				zap.String("journal", journal.Name),
				zap.String("field", field),
				zap.String("url", t.item.URL))
			result.Totals.SkippedExclusion++
			continue
		}

		if err := m.augmenter.Augment(ctx, meta, journal); err != nil {
			result.ItemErrors = append(result.ItemErrors, err)
			continue
		}

		if ShouldSkipOnlineFirst(meta, m.global.SkipOnlineFirst) {
			result.Totals.SkippedOnlineFirst++
			continue
		}
		if IsEarlyView(meta) {
			result.Totals.SkippedEarlyView++
			continue
		}

		rec, err := m.builder.Build(meta, journal, t.item.URL)
		if err != nil {
			result.ItemErrors = append(result.ItemErrors, err)
			continue
		}

		if key, excluded, err := RecordExcluded(rec, journal); err != nil {
			result.ItemErrors = append(result.ItemErrors, err)
			continue
		} else if excluded {
			m.logger.Debug("record excluded",
				zap.String("journal", journal.Name),
				zap.String("filter", key))
			result.Totals.SkippedExclusion++
			continue
		}

		result.Records = append(result.Records, rec)
		result.Totals.Records++
	}
	return result
}
