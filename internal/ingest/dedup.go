package ingest

// dedupSet remembers recently seen update IDs with FIFO eviction. Telegram's
// offset mechanism can redeliver the same update across restarts, so this is
// required for correctness, not a cache.
type dedupSet struct {
	cap   int
	seen  map[int64]bool
	order []int64
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &dedupSet{
		cap:  capacity,
		seen: make(map[int64]bool, capacity),
	}
}

// add records id and reports whether it was new.
func (d *dedupSet) add(id int64) bool {
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	d.order = append(d.order, id)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return true
}
