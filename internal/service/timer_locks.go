package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyedLocks provides per-timer mutual exclusion without a global bottleneck.
// Two concurrent evaluations of the same timer serialize on the same shard;
// unrelated timers almost always proceed in parallel.
type keyedLocks struct {
	shards [lockShards]sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{}
}

func (l *keyedLocks) lock(key string) func() {
	shard := &l.shards[shardIndex(key)]
	shard.Lock()
	return shard.Unlock
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % lockShards
}
