package services

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFormats(t *testing.T) {
	assert.Equal(t, "invoice:CAI:24", InvoiceCounter("CAI", 2024))
	assert.Equal(t, "INV-CAI-24-0001", FormatInvoiceNumber("CAI", 2024, 1))
	assert.Equal(t, "INV-ALX-05-12345", FormatInvoiceNumber("ALX", 2005, 12345))
	assert.Equal(t, "INS-000042", FormatInstallationNumber(42))
}

func TestGormSequenceIncrements(t *testing.T) {
	db := newTestDB(t)
	seq := NewGormSequence(db, nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "installation")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Names are independent
	got, err := seq.Next(ctx, "invoice:CAI:24")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestGormSequenceSeedsFromExistingOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertInstallation(t, nil)
	f.insertInstallation(t, nil)
	f.insertDelivery(t, func(o *models.DeliveryOrder) { o.InvoiceNumber = "INV-CAI-24-0001" })
	f.insertDelivery(t, func(o *models.DeliveryOrder) { o.InvoiceNumber = "INV-CAI-23-0007" })

	seq := NewGormSequence(f.db, OrderCountSeed(f.db))

	n, err := seq.Next(ctx, installationCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Only this year's invoices for the branch count
	n, err = seq.Next(ctx, InvoiceCounter("CAI", 2024))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = seq.Next(ctx, InvoiceCounter("ALX", 2024))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormSequenceConcurrentCallersGetDistinctValues(t *testing.T) {
	db := newTestDB(t)
	seq := NewGormSequence(db, nil)

	const callers = 20
	values := make([]int64, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = seq.Next(context.Background(), "installation")
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := range values {
		require.NoError(t, errs[i])
		assert.False(t, seen[values[i]], "value %d handed out twice", values[i])
		seen[values[i]] = true
	}
	assert.Len(t, seen, callers)
}

// TestRedisSequence runs only when a redis server is available
func TestRedisSequence(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	name := "test:" + t.Name()
	require.NoError(t, rdb.Del(ctx, "seq:"+name).Err())
	t.Cleanup(func() { rdb.Del(context.Background(), "seq:"+name) })

	seq := NewRedisSequence(rdb, func(context.Context, string) (int64, error) { return 10, nil })
	n, err := seq.Next(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	n, err = seq.Next(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
