package account

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dcrodman/crowdchess/internal/rules"
)

// colorCache remembers which side an account plays in a game. Memberships
// never change once written, so entries do not expire.
type colorCache struct {
	cacheInstance *gocache.Cache
}

func newColorCache() *colorCache {
	return &colorCache{cacheInstance: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func colorKey(accountID uint64, gameID int64) string {
	return fmt.Sprintf("%d:%d", accountID, gameID)
}

func (c *colorCache) Put(accountID uint64, gameID int64, color rules.Color) {
	c.cacheInstance.Set(colorKey(accountID, gameID), color, gocache.NoExpiration)
}

func (c *colorCache) Get(accountID uint64, gameID int64) (rules.Color, bool) {
	v, ok := c.cacheInstance.Get(colorKey(accountID, gameID))
	if !ok {
		return rules.White, false
	}
	return v.(rules.Color), true
}

// Forget drops every cached entry for gameID.
func (c *colorCache) Forget(gameID int64) {
	suffix := fmt.Sprintf(":%d", gameID)
	for key := range c.cacheInstance.Items() {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			c.cacheInstance.Delete(key)
		}
	}
}

func (c *colorCache) Len() int {
	return c.cacheInstance.ItemCount()
}
