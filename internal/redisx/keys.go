package redisx

import "time"

const (
	// Per-order coordinator lock: lock:order:{order_id} -> owner token
	KeyOrderLock = "lock:order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderLock = 15 * time.Second
	TTLDedup     = 48 * time.Hour
)
