package retrieval

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/setlist/internal/images"
	"github.com/lehigh-university-libraries/setlist/internal/models"
)

// Resolver obtains raw bytes for an image reference
type Resolver interface {
	Resolve(ctx context.Context, imageRef string) (*Resolution, error)
}

// Outcome is the settled result for one item. Exactly one of Image and Err is set.
type Outcome struct {
	Index    int
	Item     models.Item
	Image    *images.Image
	Strategy string
	Err      error
}

// OK reports whether the item produced an image
func (o Outcome) OK() bool {
	return o.Err == nil && o.Image != nil
}

// Kind classifies the outcome's failure
func (o Outcome) Kind() FailureKind {
	return KindOf(o.Err)
}

// Coordinator resolves and normalizes every item of a batch concurrently
type Coordinator struct {
	resolver    Resolver
	normalizer  images.Normalizer
	maxInFlight int

	// OnSettled is called once per item as soon as its outcome is known.
	// It may be called from several goroutines at once.
	OnSettled func(Outcome)
}

// NewCoordinator creates a coordinator. maxInFlight <= 0 means unbounded.
func NewCoordinator(resolver Resolver, normalizer images.Normalizer, maxInFlight int) *Coordinator {
	return &Coordinator{
		resolver:    resolver,
		normalizer:  normalizer,
		maxInFlight: maxInFlight,
	}
}

// RetrieveAll returns one outcome per item, in input order. Items never
// cancel each other; the call returns once every item has settled. If ctx is
// cancelled, items that have not resolved yet settle as failed.
func (c *Coordinator) RetrieveAll(ctx context.Context, items []models.Item) []Outcome {
	outcomes := make([]Outcome, len(items))

	limit := c.maxInFlight
	if limit <= 0 {
		limit = -1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = c.settle(ctx, i, item)
			if c.OnSettled != nil {
				c.OnSettled(outcomes[i])
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// settle runs retrieve and turns a panic in a resolver or decoder into a
// failed outcome for that item alone
func (c *Coordinator) settle(ctx context.Context, index int, item models.Item) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = c.failed(ctx, Outcome{
				Index: index,
				Item:  item,
				Err:   fmt.Errorf("%w: %v", ErrInternal, r),
			})
		}
	}()
	return c.retrieve(ctx, index, item)
}

func (c *Coordinator) retrieve(ctx context.Context, index int, item models.Item) Outcome {
	outcome := Outcome{Index: index, Item: item}

	if err := ctx.Err(); err != nil {
		outcome.Err = fmt.Errorf("%w: %s: %w", ErrChainExhausted, item.ImageURL, err)
		return c.failed(ctx, outcome)
	}

	res, err := c.resolver.Resolve(ctx, item.ImageURL)
	if err != nil {
		if !errors.Is(err, ErrChainExhausted) {
			err = fmt.Errorf("%w: %w", ErrChainExhausted, err)
		}
		outcome.Err = err
		return c.failed(ctx, outcome)
	}
	outcome.Strategy = res.Strategy

	img, err := c.normalizer.Normalize(res.Data)
	if err != nil {
		outcome.Err = fmt.Errorf("failed to normalize image from %s: %w", res.Strategy, err)
		return c.failed(ctx, outcome)
	}

	outcome.Image = img
	Logger(ctx).Debug("Item retrieved", "index", index, "id", item.ID, "strategy", res.Strategy, "width", img.Width, "height", img.Height)
	return outcome
}

func (c *Coordinator) failed(ctx context.Context, outcome Outcome) Outcome {
	Logger(ctx).Warn("Image retrieval failed, item will be skipped",
		"index", outcome.Index,
		"id", outcome.Item.ID,
		"title", outcome.Item.Title,
		"kind", outcome.Kind(),
		"error", outcome.Err)
	return outcome
}
