package escrow

import (
	"sync"

	"github.com/google/uuid"
)

const lockShards = 64

// keyMutex serializes transitions per PeaceLink. Locks are sharded by entity
// identifier so unrelated transactions do not contend on a global lock; two
// PeaceLinks hashing to the same shard serialize harmlessly.
type keyMutex struct {
	shards [lockShards]sync.Mutex
}

func (k *keyMutex) lock(id uuid.UUID) func() {
	m := &k.shards[int(id[0])%lockShards]
	m.Lock()
	return m.Unlock
}
