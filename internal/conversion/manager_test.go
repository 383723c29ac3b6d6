package conversion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
)

// gateClassifier tracks how many conversions run concurrently.
type gateClassifier struct {
	current atomic.Int32
	max     atomic.Int32
}

func (g *gateClassifier) Classify(string, []string) []string {
	now := g.current.Add(1)
	for {
		max := g.max.Load()
		if now <= max || g.max.CompareAndSwap(max, now) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	g.current.Add(-1)
	return []string{"eng"}
}

func newTestManager(maxTasks int, classifier harvester.LanguageClassifier) *Manager {
	global := harvester.GlobalParams{MaxConversionTasks: maxTasks}
	augmenter := NewAugmenter(nil, classifier, nil, zap.NewNop())
	return NewManager(global, augmenter, testBuilder(), zap.NewNop())
}

func articleBody(title string) []byte {
	return []byte(fmt.Sprintf(
		`[{"itemType":"journalArticle","title":"%s","volume":"1","issue":"2"}]`, title))
}

func classifiedJournal() *harvester.JournalParams {
	journal := newTestJournal()
	journal.ExpectedLanguages = []string{"eng", "ger"}
	return journal
}

func TestManagerBoundedConcurrency(t *testing.T) {
	classifier := &gateClassifier{}
	manager := newTestManager(3, classifier)
	journal := classifiedJournal()

	var futures []*Future
	for i := 0; i < 20; i++ {
		item := harvester.HarvestableItem{
			Journal: journal,
			URL:     fmt.Sprintf("https://example.com/%d", i),
		}
		futures = append(futures, manager.Submit(item, articleBody(fmt.Sprintf("Article %d", i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, future := range futures {
		result, err := future.Wait(ctx)
		require.NoError(t, err)
		require.NoError(t, result.Err)
		require.Len(t, result.Records, 1)
	}
	manager.Stop()

	require.LessOrEqual(t, classifier.max.Load(), int32(3))
	require.Greater(t, classifier.max.Load(), int32(1))
}

func TestManagerStopDrainsQueue(t *testing.T) {
	manager := newTestManager(2, &gateClassifier{})
	journal := classifiedJournal()

	var futures []*Future
	for i := 0; i < 10; i++ {
		item := harvester.HarvestableItem{Journal: journal, URL: fmt.Sprintf("https://example.com/%d", i)}
		futures = append(futures, manager.Submit(item, articleBody("Drained")))
	}
	manager.Stop()

	// After Stop every future must already be resolved.
	for _, future := range futures {
		select {
		case <-future.done:
		default:
			t.Fatal("future unresolved after Stop")
		}
	}
}

func TestManagerParseFailure(t *testing.T) {
	manager := newTestManager(1, nil)
	defer manager.Stop()

	item := harvester.HarvestableItem{Journal: newTestJournal(), URL: "https://example.com/bad"}
	future := manager.Submit(item, []byte("this is not json"))

	result, err := future.Wait(context.Background())
	require.NoError(t, err)
	require.Error(t, result.Err)
	require.Empty(t, result.Records)
}

func TestManagerSkipCountersAndItemIsolation(t *testing.T) {
	manager := newTestManager(1, nil)
	defer manager.Stop()

	body := []byte(`[
		{"itemType":"journalArticle","title":"Online first without DOI"},
		{"itemType":"journalArticle","title":"Early view","volume":"n/a","issue":"n/a"},
		{"itemType":"journalArticle","title":"","volume":"1","issue":"1"},
		{"itemType":"journalArticle","title":"Good one","volume":"1","issue":"1"}
	]`)

	item := harvester.HarvestableItem{Journal: newTestJournal(), URL: "https://example.com/multi"}
	result, err := manager.Submit(item, body).Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, result.Err)

	require.Equal(t, 1, result.Totals.SkippedOnlineFirst)
	require.Equal(t, 1, result.Totals.SkippedEarlyView)
	require.Len(t, result.ItemErrors, 1)
	require.Len(t, result.Records, 1)
	require.Equal(t, 1, result.Totals.Records)
}

func TestManagerConcurrentSubmitters(t *testing.T) {
	manager := newTestManager(4, nil)
	journal := newTestJournal()

	var wg sync.WaitGroup
	results := make(chan Result, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := harvester.HarvestableItem{Journal: journal, URL: fmt.Sprintf("https://example.com/%d", i)}
			result, err := manager.Submit(item, articleBody("Concurrent")).Wait(context.Background())
			require.NoError(t, err)
			results <- result
		}(i)
	}
	wg.Wait()
	manager.Stop()

	close(results)
	var records int
	for result := range results {
		records += len(result.Records)
	}
	require.Equal(t, 40, records)
}
