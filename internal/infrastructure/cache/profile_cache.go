package cache

import (
	"context"
	"sync"
	"time"

	"lotedd/internal/domain/entity"
	"lotedd/internal/domain/repository"
)

type cachedProfile struct {
	user      *entity.User
	expiresAt time.Time
}

// ProfileCache is a bounded-lifetime read-through cache over the user
// repository. It is constructed and injected rather than held as package
// state, and every write through it invalidates the cached profile.
type ProfileCache struct {
	users repository.UserRepository
	ttl   time.Duration

	mutex    sync.RWMutex
	profiles map[string]cachedProfile
}

func NewProfileCache(users repository.UserRepository, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		users:    users,
		ttl:      ttl,
		profiles: make(map[string]cachedProfile),
	}
}

func (c *ProfileCache) GetByID(ctx context.Context, id string) (*entity.User, error) {
	c.mutex.RLock()
	cached, ok := c.profiles[id]
	c.mutex.RUnlock()

	if ok && time.Now().Before(cached.expiresAt) {
		return cached.user, nil
	}

	user, err := c.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.profiles[id] = cachedProfile{user: user, expiresAt: time.Now().Add(c.ttl)}
	c.mutex.Unlock()

	return user, nil
}

func (c *ProfileCache) Create(ctx context.Context, user *entity.User) error {
	if err := c.users.Create(ctx, user); err != nil {
		return err
	}
	c.Invalidate(user.ID)
	return nil
}

func (c *ProfileCache) Update(ctx context.Context, user *entity.User) error {
	if err := c.users.Update(ctx, user); err != nil {
		return err
	}
	c.Invalidate(user.ID)
	return nil
}

// Invalidate drops a single cached profile.
func (c *ProfileCache) Invalidate(id string) {
	c.mutex.Lock()
	delete(c.profiles, id)
	c.mutex.Unlock()
}

// Flush drops every cached profile.
func (c *ProfileCache) Flush() {
	c.mutex.Lock()
	c.profiles = make(map[string]cachedProfile)
	c.mutex.Unlock()
}

func (c *ProfileCache) purgeExpired() {
	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for id, cached := range c.profiles {
		if now.After(cached.expiresAt) {
			delete(c.profiles, id)
		}
	}
}

// StartCleanupRoutine purges expired entries periodically until the context
// is cancelled.
func (c *ProfileCache) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.purgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}
