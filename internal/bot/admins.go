package bot

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultAdminCacheTTL = 5 * time.Minute
	adminCacheSize       = 256
)

// AdminLister is the part of the platform the cache needs.
type AdminLister interface {
	GetAdmins(chatID string) ([]string, error)
}

// AdminCache remembers each chat's administrators for a TTL so that admin
// checks do not cost an API call per message.
type AdminCache struct {
	source AdminLister
	cache  *expirable.LRU[string, map[string]struct{}]
}

func NewAdminCache(source AdminLister, ttl time.Duration) *AdminCache {
	if ttl <= 0 {
		ttl = DefaultAdminCacheTTL
	}
	return &AdminCache{
		source: source,
		cache:  expirable.NewLRU[string, map[string]struct{}](adminCacheSize, nil, ttl),
	}
}

func (c *AdminCache) IsAdmin(chatID, userID string) (bool, error) {
	admins, ok := c.cache.Get(chatID)
	if !ok {
		list, err := c.source.GetAdmins(chatID)
		if err != nil {
			return false, fmt.Errorf("failed to get admins for chat %s: %w", chatID, err)
		}
		admins = make(map[string]struct{}, len(list))
		for _, id := range list {
			admins[id] = struct{}{}
		}
		c.cache.Add(chatID, admins)
	}

	_, isAdmin := admins[userID]
	return isAdmin, nil
}
