package tracker

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const lockShards = 64

// keyedMutex serializes work per domain. Two domains may share a shard;
// that only costs parallelism.
type keyedMutex struct {
	shards [lockShards]sync.Mutex
}

func (k *keyedMutex) lock(id domain.DomainID) func() {
	m := &k.shards[xxhash.Sum64String(strconv.FormatInt(int64(id), 10))%lockShards]
	m.Lock()
	return m.Unlock
}
