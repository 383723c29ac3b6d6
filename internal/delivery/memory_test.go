package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thefass/ub-tools/internal/harvester"
)

func TestMemoryStoreDedup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	delivered, entry, err := store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.Nil(t, entry)

	require.NoError(t, store.RecordDelivery(ctx, harvester.DeliveryEntry{
		ID:          "id-1",
		Mode:        harvester.DeliveryLive,
		URL:         "https://example.com/a",
		JournalName: "journal",
		Checksum:    "sum1",
		DeliveredAt: time.Now(),
	}))

	// Same URL, same checksum: already delivered.
	delivered, entry, err = store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum1")
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, "id-1", entry.ID)

	// Same URL, changed content: not delivered, but the prior entry is
	// surfaced.
	delivered, entry, err = store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum2")
	require.NoError(t, err)
	require.False(t, delivered)
	require.NotNil(t, entry)

	// Modes are tracked independently.
	delivered, _, err = store.HasAlreadyDelivered(ctx, harvester.DeliveryTest, "https://example.com/a", "sum1")
	require.NoError(t, err)
	require.False(t, delivered)
}

func TestMemoryStoreFailedAttemptDoesNotSuppress(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RecordDelivery(ctx, harvester.DeliveryEntry{
		ID:           "id-1",
		Mode:         harvester.DeliveryLive,
		URL:          "https://example.com/a",
		Checksum:     "sum1",
		ErrorMessage: "sink unavailable",
	}))

	// An attempt that failed never counts as delivered, even with an
	// unchanged checksum; the prior entry is still surfaced.
	delivered, entry, err := store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.NotNil(t, entry)
	require.Equal(t, "sink unavailable", entry.ErrorMessage)

	// A successful redelivery clears the error and suppresses from then
	// on.
	require.NoError(t, store.RecordDelivery(ctx, harvester.DeliveryEntry{
		ID:       "id-2",
		Mode:     harvester.DeliveryLive,
		URL:      "https://example.com/a",
		Checksum: "sum1",
	}))
	delivered, _, err = store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum1")
	require.NoError(t, err)
	require.True(t, delivered)
}

func TestMemoryStoreReplacesOnRedelivery(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, checksum := range []string{"sum1", "sum2"} {
		require.NoError(t, store.RecordDelivery(ctx, harvester.DeliveryEntry{
			ID:       "id-" + checksum,
			Mode:     harvester.DeliveryLive,
			URL:      "https://example.com/a",
			Checksum: checksum,
		}))
	}

	require.Equal(t, 1, store.Len())
	delivered, entry, err := store.HasAlreadyDelivered(ctx, harvester.DeliveryLive, "https://example.com/a", "sum2")
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, "id-sum2", entry.ID)
}
