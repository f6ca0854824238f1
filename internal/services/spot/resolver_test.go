package spot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowscan/internal/adapters/polygon"
	"flowscan/pkg/errors"
)

type fakeBarSource struct {
	bars      []polygon.Bar
	barsErr   error
	prevClose decimal.Decimal
	prevErr   error

	barCalls  int32
	prevCalls int32
}

func (f *fakeBarSource) MinuteBars(ctx context.Context, symbol, date string) ([]polygon.Bar, error) {
	atomic.AddInt32(&f.barCalls, 1)
	return f.bars, f.barsErr
}

func (f *fakeBarSource) PrevClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	atomic.AddInt32(&f.prevCalls, 1)
	return f.prevClose, f.prevErr
}

func TestResolver_PicksClosestBar(t *testing.T) {
	base := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC).UnixMilli()

	source := &fakeBarSource{
		bars: []polygon.Bar{
			{Timestamp: base, Close: 100.0},
			{Timestamp: base + 60_000, Close: 101.0},
			{Timestamp: base + 120_000, Close: 102.0},
		},
	}
	resolver := NewResolver(source)

	// 25s past the second bar's open: nearest is the second bar
	price := resolver.Resolve(context.Background(), "SPY", base+85_000)
	assert.True(t, price.Equal(decimal.RequireFromString("101")), "got %s", price)
}

func TestResolver_CachesByMinute(t *testing.T) {
	base := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC).UnixMilli()

	source := &fakeBarSource{
		bars: []polygon.Bar{{Timestamp: base, Close: 250.5}},
	}
	resolver := NewResolver(source)

	first := resolver.Resolve(context.Background(), "QQQ", base+10_000)
	// Same minute bucket: served from cache, no second fetch
	second := resolver.Resolve(context.Background(), "QQQ", base+30_000)

	assert.True(t, first.Equal(second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.barCalls))

	// A different minute misses and refetches
	resolver.Resolve(context.Background(), "QQQ", base+70_000)
	assert.Equal(t, int32(2), atomic.LoadInt32(&source.barCalls))
}

func TestResolver_FallsBackToPrevClose(t *testing.T) {
	source := &fakeBarSource{
		barsErr:   errors.Wrap(errors.ErrTransport, "bars endpoint down"),
		prevClose: decimal.RequireFromString("412.75"),
	}
	resolver := NewResolver(source)

	price := resolver.Resolve(context.Background(), "IWM", time.Now().UnixMilli())
	assert.True(t, price.Equal(decimal.RequireFromString("412.75")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.prevCalls))
}

func TestResolver_EmptyBarsFallBack(t *testing.T) {
	source := &fakeBarSource{
		bars:      nil,
		prevClose: decimal.NewFromInt(99),
	}
	resolver := NewResolver(source)

	price := resolver.Resolve(context.Background(), "DIA", time.Now().UnixMilli())
	assert.True(t, price.Equal(decimal.NewFromInt(99)))
}

func TestResolver_NeverFailsHard(t *testing.T) {
	source := &fakeBarSource{
		barsErr: errors.Wrap(errors.ErrTransport, "down"),
		prevErr: errors.Wrap(errors.ErrTransport, "also down"),
	}
	resolver := NewResolver(source)

	// Total upstream failure degrades to zero rather than erroring
	price := resolver.Resolve(context.Background(), "SPY", time.Now().UnixMilli())
	require.True(t, price.IsZero())
}
