package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/setlist/internal/images"
	"github.com/lehigh-university-libraries/setlist/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func makeItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{
			ID:       fmt.Sprintf("%d", i),
			Title:    fmt.Sprintf("Song %d", i),
			ImageURL: fmt.Sprintf("https://images.example.com/%d.png", i),
		}
	}
	return items
}

// resolverFunc adapts a function to Resolver
type resolverFunc func(ctx context.Context, ref string) (*Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	return f(ctx, ref)
}

func TestRetrieveAllPreservesOrder(t *testing.T) {
	items := makeItems(20)
	data := map[string][]byte{}
	for i, item := range items {
		data[item.ImageURL] = pngBytes(t, 10+i, 5)
	}

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		return &Resolution{Data: data[ref], Strategy: "direct"}, nil
	})

	outcomes := NewCoordinator(resolver, images.NewJPEGNormalizer(90), 4).RetrieveAll(context.Background(), items)
	require.Len(t, outcomes, len(items))

	for i, outcome := range outcomes {
		assert.Equal(t, i, outcome.Index)
		assert.Equal(t, items[i], outcome.Item)
		require.True(t, outcome.OK(), outcome.Err)
		assert.Equal(t, 10+i, outcome.Image.Width, "outcome %d carries its own item's image", i)
		assert.Equal(t, "direct", outcome.Strategy)
	}
}

func TestRetrieveAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	raw := pngBytes(t, 4, 4)

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &Resolution{Data: raw}, nil
	})

	NewCoordinator(resolver, images.Passthrough{}, 3).RetrieveAll(context.Background(), makeItems(15))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestRetrieveAllFailureDoesNotAbortBatch(t *testing.T) {
	items := makeItems(5)
	raw := pngBytes(t, 8, 8)

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		switch ref {
		case items[1].ImageURL:
			return &Resolution{}, fmt.Errorf("%w: %s", ErrChainExhausted, ref)
		case items[3].ImageURL:
			return &Resolution{Data: []byte("<html>not an image</html>"), Strategy: "proxy-b"}, nil
		}
		return &Resolution{Data: raw, Strategy: "direct"}, nil
	})

	var settled sync.Map
	coordinator := NewCoordinator(resolver, images.NewJPEGNormalizer(95), 0)
	coordinator.OnSettled = func(o Outcome) { settled.Store(o.Index, o.Kind()) }

	outcomes := coordinator.RetrieveAll(context.Background(), items)
	require.Len(t, outcomes, 5)

	assert.True(t, outcomes[0].OK())
	assert.Equal(t, KindChainExhausted, outcomes[1].Kind())
	assert.Nil(t, outcomes[1].Image)
	assert.True(t, outcomes[2].OK())
	assert.Equal(t, KindDecodeError, outcomes[3].Kind())
	assert.ErrorIs(t, outcomes[3].Err, images.ErrDecode)
	assert.True(t, outcomes[4].OK())

	for i := range items {
		_, ok := settled.Load(i)
		assert.True(t, ok, "OnSettled called for item %d", i)
	}
}

func TestRetrieveAllEveryItemFails(t *testing.T) {
	fetcher := newStubFetcher()
	chain := NewChain(fetcher, testStrategies(), time.Second)

	outcomes := NewCoordinator(chain, images.NewJPEGNormalizer(95), 2).RetrieveAll(context.Background(), makeItems(4))
	require.Len(t, outcomes, 4)
	for _, outcome := range outcomes {
		assert.False(t, outcome.OK())
		assert.ErrorIs(t, outcome.Err, ErrChainExhausted)
	}
	assert.Len(t, fetcher.Calls(), 12, "every strategy tried once per item")
}

func TestRetrieveAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return &Resolution{}, fmt.Errorf("%w: %w", ErrChainExhausted, ctx.Err())
	})

	go func() {
		<-started
		cancel()
	}()

	items := makeItems(6)
	outcomes := NewCoordinator(resolver, images.Passthrough{}, 2).RetrieveAll(ctx, items)
	require.Len(t, outcomes, len(items))
	for i, outcome := range outcomes {
		assert.Equal(t, items[i], outcome.Item)
		assert.False(t, outcome.OK())
		assert.ErrorIs(t, outcome.Err, ErrChainExhausted)
		assert.ErrorIs(t, outcome.Err, context.Canceled)
	}
}

func TestRetrieveAllEmpty(t *testing.T) {
	outcomes := NewCoordinator(resolverFunc(nil), images.Passthrough{}, 2).RetrieveAll(context.Background(), nil)
	assert.Empty(t, outcomes)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindUnreachable, KindOf(&images.FetchError{URL: "x", StatusCode: 500}))
	assert.Equal(t, KindChainExhausted, KindOf(fmt.Errorf("%w: %w", ErrChainExhausted, &images.FetchError{URL: "x"})))
	assert.Equal(t, KindDecodeError, KindOf(fmt.Errorf("wrap: %w", images.ErrDecode)))
	assert.Equal(t, KindAllRetrievalsFailed, KindOf(ErrAllRetrievalsFailed))
	assert.Equal(t, KindInternal, KindOf(errors.New("something else")))
	assert.Equal(t, KindInternal, KindOf(ErrInternal))
}

// panicNormalizer stands in for a decoder that panics on hostile input
type panicNormalizer struct{}

func (panicNormalizer) Normalize([]byte) (*images.Image, error) {
	panic("corrupt huffman table")
}

func TestRetrieveAllRecoversFromPanics(t *testing.T) {
	items := makeItems(3)
	raw := pngBytes(t, 4, 4)

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		if ref == items[1].ImageURL {
			return &Resolution{Data: []byte("boom"), Strategy: "direct"}, nil
		}
		return &Resolution{Data: raw, Strategy: "direct"}, nil
	})

	normalizer := normalizerFunc(func(data []byte) (*images.Image, error) {
		if string(data) == "boom" {
			return panicNormalizer{}.Normalize(data)
		}
		return images.NewJPEGNormalizer(90).Normalize(data)
	})

	outcomes := NewCoordinator(resolver, normalizer, 2).RetrieveAll(context.Background(), items)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.ErrorIs(t, outcomes[1].Err, ErrInternal)
	assert.ErrorContains(t, outcomes[1].Err, "corrupt huffman table")
	assert.Equal(t, KindInternal, outcomes[1].Kind())
	assert.Equal(t, items[1], outcomes[1].Item)
	assert.True(t, outcomes[2].OK())
}

// normalizerFunc adapts a function to images.Normalizer
type normalizerFunc func([]byte) (*images.Image, error)

func (f normalizerFunc) Normalize(data []byte) (*images.Image, error) {
	return f(data)
}

func TestRetrieveAllClassifiesResolverErrors(t *testing.T) {
	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		return nil, errors.New("dns lookup failed")
	})

	outcomes := NewCoordinator(resolver, images.Passthrough{}, 1).RetrieveAll(context.Background(), makeItems(1))
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, ErrChainExhausted)
	assert.Equal(t, KindChainExhausted, outcomes[0].Kind())
}

func TestRetrieveAllLogsWithContextLogger(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("run_id", "run-42")
	ctx := WithLogger(context.Background(), logger)

	resolver := resolverFunc(func(ctx context.Context, ref string) (*Resolution, error) {
		return &Resolution{}, fmt.Errorf("%w: %s", ErrChainExhausted, ref)
	})

	NewCoordinator(resolver, images.Passthrough{}, 2).RetrieveAll(ctx, makeItems(2))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Image retrieval failed"))
	assert.Equal(t, 2, strings.Count(out, "run_id=run-42"))
}

func TestLoggerDefault(t *testing.T) {
	assert.Same(t, slog.Default(), Logger(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, logger, Logger(WithLogger(context.Background(), logger)))
}

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
