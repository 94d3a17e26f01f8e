package platforms

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
)

// Catalog lists the platforms a user may connect to.
type Catalog interface {
	Get(slug string) (Platform, error)
	List() []Platform
	Validate(slug string) bool
	Logo(slug, environment string) string
}

var _ Catalog = (*StaticCatalog)(nil)

// StaticCatalog is a thread-safe in-memory catalog.
type StaticCatalog struct {
	platforms map[string]Platform
	lock      sync.RWMutex
}

// NewStaticCatalog creates a catalog holding the given platforms.
func NewStaticCatalog(platforms ...Platform) *StaticCatalog {
	c := &StaticCatalog{platforms: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		c.platforms[p.Slug] = p
	}
	return c
}

// Register adds or replaces a platform.
func (c *StaticCatalog) Register(p Platform) error {
	if p.Slug == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "[StaticCatalog.Register] slug is required")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.platforms[p.Slug] = p
	return nil
}

func (c *StaticCatalog) Get(slug string) (Platform, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	p, ok := c.platforms[slug]
	if !ok {
		return Platform{}, errors.Wrap(apperrors.ErrUnknownPlatform, slug)
	}
	return p, nil
}

// List returns every platform sorted by slug.
func (c *StaticCatalog) List() []Platform {
	c.lock.RLock()
	defer c.lock.RUnlock()

	list := make([]Platform, 0, len(c.platforms))
	for _, p := range c.platforms {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Slug < list[j].Slug
	})
	return list
}

func (c *StaticCatalog) Validate(slug string) bool {
	_, err := c.Get(slug)
	return err == nil
}

// Logo returns "" for unknown platforms.
func (c *StaticCatalog) Logo(slug, environment string) string {
	p, err := c.Get(slug)
	if err != nil {
		return ""
	}
	return p.Logo(environment)
}
