package middleware

import "github.com/gin-gonic/gin"

const (
	// CacheHeader reports whether a cached report answered the request.
	CacheHeader = "X-Cache"
	cacheHitKey = "cache_hit"
)

// SetCacheHit marks the response as served from cache or not. Call it before
// writing the body.
func SetCacheHit(c *gin.Context, hit bool) {
	c.Set(cacheHitKey, hit)
	if hit {
		c.Header(CacheHeader, "HIT")
		return
	}
	c.Header(CacheHeader, "MISS")
}

// CacheHit reports the value recorded by SetCacheHit.
func CacheHit(c *gin.Context) (hit bool, recorded bool) {
	value, exists := c.Get(cacheHitKey)
	if !exists {
		return false, false
	}
	hit, ok := value.(bool)
	return hit, ok
}
