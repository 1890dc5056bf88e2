package collection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lehigh-university-libraries/setlist/internal/models"
)

// ErrIndexOutOfRange is returned for removal or moves past the end
var ErrIndexOutOfRange = errors.New("index out of range")

// Collection is the ordered working setlist. Duplicates are kept as distinct
// entries; identity is the position.
type Collection struct {
	items []models.Item
	mu    sync.RWMutex
	// notify is taken before mu is released so OnChange calls run one at a
	// time in the same order as the mutations they report.
	notify sync.Mutex

	// OnChange runs synchronously after every mutation with a snapshot of the
	// new contents, so any view can be regenerated before the next mutation.
	// It must not call back into the collection.
	OnChange func(items []models.Item)
}

func New() *Collection {
	return &Collection{}
}

// Append adds item at the end and returns its index
func (c *Collection) Append(item models.Item) int {
	c.mu.Lock()
	c.items = append(c.items, item)
	index := len(c.items) - 1
	c.publishLocked(c.snapshotLocked())
	return index
}

// Remove deletes the item at index; later items shift down by one
func (c *Collection) Remove(index int) (models.Item, error) {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		n := len(c.items)
		c.mu.Unlock()
		return models.Item{}, fmt.Errorf("%w: %d (collection has %d items)", ErrIndexOutOfRange, index, n)
	}
	removed := c.items[index]
	c.items = append(c.items[:index], c.items[index+1:]...)
	c.publishLocked(c.snapshotLocked())
	return removed, nil
}

// Move relocates the item at from so that it ends up at index to
func (c *Collection) Move(from, to int) error {
	c.mu.Lock()
	n := len(c.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		c.mu.Unlock()
		return fmt.Errorf("%w: move %d -> %d (collection has %d items)", ErrIndexOutOfRange, from, to, n)
	}
	item := c.items[from]
	c.items = append(c.items[:from], c.items[from+1:]...)
	c.items = append(c.items[:to], append([]models.Item{item}, c.items[to:]...)...)
	c.publishLocked(c.snapshotLocked())
	return nil
}

// Items returns a copy of the current contents; callers may keep it as a
// read-only snapshot while the collection keeps changing.
func (c *Collection) Items() []models.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection) snapshotLocked() []models.Item {
	result := make([]models.Item, len(c.items))
	copy(result, c.items)
	return result
}

// publishLocked releases mu and delivers snapshot to OnChange. The caller
// must hold mu for writing.
func (c *Collection) publishLocked(snapshot []models.Item) {
	c.notify.Lock()
	defer c.notify.Unlock()
	c.mu.Unlock()

	if c.OnChange != nil {
		c.OnChange(snapshot)
	}
}
