package memory

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// RedisBackend's Remember/Search require a live redis server (or a fake
// implementing the redis.Cmdable surface), so this file exercises only
// the deterministic, server-independent pieces: key namespacing.
// Integration coverage against a real server belongs in a separate
// build-tagged suite, not unit tests.

func TestRedisBackendProfileKeyNamespacing(t *testing.T) {
	b := NewRedisBackend(redis.NewClient(&redis.Options{}), "substrate:memory")
	assert.Equal(t, "substrate:memory:tenant-a", b.profileKey("tenant-a"))
}

func TestRedisBackendDefaultsKeyPrefix(t *testing.T) {
	b := NewRedisBackend(redis.NewClient(&redis.Options{}), "")
	assert.Equal(t, "substrate:memory:p1", b.profileKey("p1"))
}
