// Package jardb is an embeddable, in-process key/value store. All live
// data lives in memory behind a chained hash table; two complementary
// mechanisms make it durable across process restarts: a periodic full
// binary snapshot ("dump") and an append-only command log ("AOL") that
// replays on open.
//
// The store is not safe for concurrent mutation from multiple goroutines
// against the same *Database — callers must serialize their own access,
// the same contract the store's C origin places on its callers.
package jardb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// dbState tracks whether a Database is still replaying its append-only
// log (startup) or is open for business (serving). I4 forbids AOL writes
// while in startup.
type dbState int

const (
	stateStartup dbState = iota
	stateAOKAY
)

// Database is an open handle to a store. Create one with Open and release
// it with Close or CloseAndSave.
type Database struct {
	name string
	path string

	created time.Time

	slots     []*bucket
	slotCount int
	rcrdCnt   int

	keyCollisions int
	featureSet    FeatureSet
	state         dbState

	dumpPath string
	aolPath  string
	aol      *aolWriter

	diag Diag
	lock *pathLock
}

// chainWarnDepth is the chain length past which Open/Put emits a
// diagnostic about excessive collision chaining.
const chainWarnDepth = 100

// Open creates or recovers a database at opts.Path/opts.Name. If opts.Path
// does not exist it is created with mode 0755. When opts.FeatureSet has
// AppendOnly set, the AOL is replayed into the index before Open returns;
// a replay failure fails Open entirely, leaving no handle.
func Open(opts Options) (*Database, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil { //nolint:gosec // matches the store's own file layout
		return nil, fmt.Errorf("%w: creating path: %w", ErrIO, err)
	}

	diag := opts.Diag
	if diag == nil {
		diag = defaultDiag()
	}

	dumpPath := filepath.Join(opts.Path, opts.Name+".dump")
	aolPath := filepath.Join(opts.Path, opts.Name+".aol")

	lock, err := acquirePathLock(dumpPath)
	if err != nil {
		return nil, err
	}

	slotCount := opts.InitialSlotCount

	db := &Database{
		name:      opts.Name,
		path:      opts.Path,
		created:   time.Now(),
		slots:     make([]*bucket, slotCount),
		slotCount: slotCount,
		featureSet: opts.FeatureSet,
		state:     stateStartup,
		dumpPath:  dumpPath,
		aolPath:   aolPath,
		diag:      diag,
		lock:      lock,
	}

	if db.hasFeature(AppendOnly) {
		aol, err := openAOL(aolPath)
		if err != nil {
			lock.release()
			return nil, fmt.Errorf("%w: opening aol: %w", ErrIO, err)
		}

		db.aol = aol

		if err := db.replayAOL(); err != nil {
			_ = aol.close()
			lock.release()
			return nil, fmt.Errorf("%w: replaying aol: %w", ErrIO, err)
		}
	}

	db.state = stateAOKAY

	return db, nil
}

func (db *Database) hasFeature(f FeatureSet) bool {
	return db.featureSet&f != 0
}

// Put upserts key -> value using the default content type
// ("application/octet-stream").
func (db *Database) Put(key, value []byte) error {
	return db.PutWithContentType(key, value, "")
}

// PutWithContentType upserts key -> value, storing the supplied content
// type verbatim. An empty contentType stores the default.
func (db *Database) PutWithContentType(key, value []byte, contentType string) error {
	if db.slots == nil {
		return ErrClosed
	}

	truncated := truncateKey(key)
	if len(truncated) == 0 {
		return ErrKeyEmpty
	}

	h := fingerprint(truncated)

	if existing := db.find(truncated, h); existing != nil {
		existing.upsert(truncated, value, contentType)
		return db.writeJAR(truncated, existing.data)
	}

	if db.rcrdCnt == db.slotCount {
		if err := db.growAndRehash(); err != nil {
			return err
		}
	}

	slot := slotFor(h, db.slotCount)
	nb := newBucket(truncated, h, value, contentType)

	if db.slots[slot] != nil {
		db.keyCollisions++
	}

	nb.next = db.slots[slot]
	db.slots[slot] = nb
	db.rcrdCnt++

	db.warnIfChainTooLong(slot)

	return db.writeJAR(truncated, nb.data)
}

// Get returns a copy of the current value for key, or ErrNotFound.
func (db *Database) Get(key []byte) ([]byte, error) {
	v, _, err := db.GetWithSize(key)
	return v, err
}

// GetWithSize returns a copy of the current value for key along with its
// length, or ErrNotFound.
func (db *Database) GetWithSize(key []byte) ([]byte, int, error) {
	if db.slots == nil {
		return nil, 0, ErrClosed
	}

	truncated := truncateKey(key)
	h := fingerprint(truncated)

	b := db.find(truncated, h)
	if b == nil {
		return nil, 0, ErrNotFound
	}

	out := append([]byte(nil), b.data...)

	return out, len(out), nil
}

// ContentType returns the stored content type for key, or ErrNotFound.
func (db *Database) ContentType(key []byte) (string, error) {
	if db.slots == nil {
		return "", ErrClosed
	}

	truncated := truncateKey(key)
	h := fingerprint(truncated)

	b := db.find(truncated, h)
	if b == nil {
		return "", ErrNotFound
	}

	return b.contentType, nil
}

// Delete removes key from the index. Per OQ3 the chain walk always
// compares against the truncated key, head bucket or not.
func (db *Database) Delete(key []byte) error {
	if db.slots == nil {
		return ErrClosed
	}

	truncated := truncateKey(key)
	h := fingerprint(truncated)
	slot := slotFor(h, db.slotCount)

	var prev *bucket

	for b := db.slots[slot]; b != nil; b = b.next {
		if b.hash == h && b.matches(truncated) {
			if err := db.writeSCOOP(truncated); err != nil {
				return err
			}

			if prev == nil {
				db.slots[slot] = b.next
			} else {
				prev.next = b.next
			}

			db.rcrdCnt--

			return nil
		}

		prev = b
	}

	return ErrNotFound
}

// SetExpire is a placeholder: the distilled specification treats TTL
// enforcement as a future design, not implemented here. It always
// succeeds and has no effect.
func (db *Database) SetExpire(key []byte, seconds int) error {
	_ = key
	_ = seconds

	return nil
}

// Uptime returns the time elapsed since Open created this handle.
func (db *Database) Uptime() time.Duration {
	return time.Since(db.created)
}

// RecordCount returns the live record count (I1).
func (db *Database) RecordCount() int {
	return db.rcrdCnt
}

// SlotCount returns the current power-of-two slot count.
func (db *Database) SlotCount() int {
	return db.slotCount
}

// KeyCollisions returns the cumulative count of insertions that landed in
// a non-empty slot (rehash-driven placements are not counted).
func (db *Database) KeyCollisions() int {
	return db.keyCollisions
}

// Snapshot returns a copy of every (truncated key, value) pair currently
// held, keyed by the truncated key bytes converted to a string. It exists
// mainly so tests can diff the live store against a reference model
// without duplicating hashing/chaining logic.
func (db *Database) Snapshot() map[string][]byte {
	out := make(map[string][]byte, db.rcrdCnt)

	for _, head := range db.slots {
		for b := head; b != nil; b = b.next {
			out[string(b.key)] = append([]byte(nil), b.data...)
		}
	}

	return out
}

// find walks the slot chain for (truncated, h) and returns the matching
// bucket, or nil.
func (db *Database) find(truncated []byte, h uint32) *bucket {
	slot := slotFor(h, db.slotCount)

	for b := db.slots[slot]; b != nil; b = b.next {
		if b.hash == h && b.matches(truncated) {
			return b
		}
	}

	return nil
}

// growAndRehash doubles slotCount and re-inserts every bucket under the
// new mask. A rehashed bucket keeps its hash and identity; only its slot
// membership changes. If it lands in a non-empty destination slot, it is
// appended to the tail of that slot's chain (not counted as a collision).
func (db *Database) growAndRehash() error {
	newCount := db.slotCount * 2
	if newCount <= 0 {
		return ErrRehashFailed
	}

	newSlots := make([]*bucket, newCount)

	for _, head := range db.slots {
		for b := head; b != nil; {
			next := b.next
			b.next = nil

			newSlot := slotFor(b.hash, newCount)
			if newSlots[newSlot] == nil {
				newSlots[newSlot] = b
			} else {
				tail := newSlots[newSlot]
				for tail.next != nil {
					tail = tail.next
				}

				tail.next = b
			}

			b = next
		}
	}

	db.slots = newSlots
	db.slotCount = newCount

	return nil
}

// warnIfChainTooLong reports a diagnostic when the chain in slot is longer
// than chainWarnDepth. It runs after every new insert, so each further
// insert into such a chain reports again.
func (db *Database) warnIfChainTooLong(slot int) {
	depth := 0
	for b := db.slots[slot]; b != nil; b = b.next {
		depth++
	}

	if depth > chainWarnDepth {
		db.diag.Warnf("slot %d chain depth %d exceeds %d", slot, depth, chainWarnDepth)
	}
}

// Close releases the handle without writing a snapshot.
func (db *Database) Close() error {
	return db.close(false)
}

// CloseAndSave writes a snapshot before releasing the handle.
func (db *Database) CloseAndSave() error {
	return db.close(true)
}

func (db *Database) close(save bool) error {
	if db.slots == nil {
		return ErrClosed
	}

	var saveErr error
	if save {
		saveErr = db.Save()
	}

	freed := 0

	for i, head := range db.slots {
		for b := head; b != nil; {
			next := b.next
			b = next
			freed++
		}

		db.slots[i] = nil
	}

	if freed != db.rcrdCnt {
		db.diag.Warnf("close: freed %d buckets but rcrd_cnt was %d", freed, db.rcrdCnt)
	}

	var aolErr error
	if db.aol != nil {
		aolErr = db.aol.close()
		db.aol = nil
	}

	db.slots = nil

	if db.lock != nil {
		db.lock.release()
		db.lock = nil
	}

	if saveErr != nil {
		return saveErr
	}

	return aolErr
}
