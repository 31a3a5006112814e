package jardb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"strconv"

	atomicfile "github.com/natefinch/atomic"
)

// Dump file format constants. DumpSig is the 4-byte magic; DumpVersion is
// serialized as 4 zero-padded ASCII digits, matching the distilled
// format's header layout exactly.
const (
	DumpSig     = "JARD"
	DumpVersion = 1
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Save writes a full point-in-time snapshot to <path>/<name>.dump,
// replacing any existing file atomically. On any error the temporary file
// is not left behind: atomic.WriteFile already writes to a temporary file
// in the destination directory and only renames it in on success.
func (db *Database) Save() error {
	buf, err := db.encodeDump()
	if err != nil {
		return err
	}

	if err := atomicfile.WriteFile(db.dumpPath, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("%w: saving dump: %w", ErrIO, err)
	}

	return nil
}

// BackgroundSave captures an immutable, point-in-time copy of the live
// records on the calling goroutine, then hands the copy to a background
// goroutine that performs the (potentially slow) encode and atomic
// rename. This is the Go rendering of the distilled spec's fork-based
// background save (§9 design note, option (b)/(c)): the copy step is the
// only part that must run before BackgroundSave returns, so mutations
// applied after that point never appear in the snapshot, matching the
// fork model's copy-on-write guarantee without an actual process fork.
//
// The returned channel receives exactly one error (nil on success) once
// the background write completes. ctx does not cancel the write or an
// in-flight rename; a caller bounds its own wait by selecting on
// ctx.Done() alongside the channel.
func (db *Database) BackgroundSave(ctx context.Context) <-chan error {
	_ = ctx

	done := make(chan error, 1)

	snapshot := db.captureSnapshot()
	dumpPath := db.dumpPath

	go func() {
		buf, err := encodeDumpRecords(snapshot)
		if err != nil {
			done <- err // buffered: never blocks, even if nobody receives
			return
		}

		err = atomicfile.WriteFile(dumpPath, bytes.NewReader(buf))
		if err != nil {
			err = fmt.Errorf("%w: background saving dump: %w", ErrIO, err)
		}

		done <- err
	}()

	return done
}

// dumpRecord is one flattened (key, value) pair captured for a snapshot.
type dumpRecord struct {
	key  []byte
	data []byte
}

// captureSnapshot walks every chain and copies each bucket's key and
// value. The copy is cheap (records are typically small) and the result
// shares no backing array with the live buckets.
func (db *Database) captureSnapshot() []dumpRecord {
	records := make([]dumpRecord, 0, db.rcrdCnt)

	for _, head := range db.slots {
		for b := head; b != nil; b = b.next {
			records = append(records, dumpRecord{
				key:  append([]byte(nil), b.key...),
				data: append([]byte(nil), b.data...),
			})
		}
	}

	return records
}

func (db *Database) encodeDump() ([]byte, error) {
	return encodeDumpRecords(db.captureSnapshot())
}

// encodeDumpRecords serializes the header and per-record rows per §4.4:
// little-endian, unpadded, each key block padded to KeySize with zeroed
// trailing bytes (the OQ1 resolution), followed by a trailing CRC32-C
// footer over everything written so far.
func encodeDumpRecords(records []dumpRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(DumpSig)
	fmt.Fprintf(&buf, "%04d", DumpVersion)

	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(records))); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	keyBlock := make([]byte, KeySize)

	for _, r := range records {
		for i := range keyBlock {
			keyBlock[i] = 0
		}

		copy(keyBlock, r.key)
		buf.Write(keyBlock)

		if err := binary.Write(&buf, binary.LittleEndian, uint64(len(r.data))); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}

		buf.Write(r.data)
	}

	sum := crc32.Checksum(buf.Bytes(), crc32cTable)

	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return buf.Bytes(), nil
}

// Load inserts the records stored in a dump file into db, each one via
// PutWithContentType so hash/klen are re-derived and content type resets
// to the default (§4.4). Keys already in db are overwritten when the dump
// holds them; keys the dump does not hold are kept. Sig/version/checksum
// mismatches are format errors and leave db unmutated.
func (db *Database) Load(path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, same as every dump path in this package
	if err != nil {
		return fmt.Errorf("%w: reading dump: %w", ErrIO, err)
	}

	if len(raw) < len(DumpSig)+4+8+4 {
		return ErrBadMagic
	}

	footerAt := len(raw) - 4
	stored := binary.LittleEndian.Uint32(raw[footerAt:])
	computed := crc32.Checksum(raw[:footerAt], crc32cTable)

	if stored != computed {
		return ErrChecksumMismatch
	}

	body := raw[:footerAt]

	if string(body[:len(DumpSig)]) != DumpSig {
		return ErrBadMagic
	}

	pos := len(DumpSig)

	version, err := strconv.Atoi(string(body[pos : pos+4]))
	if err != nil {
		return ErrBadVersion
	}

	if version != DumpVersion {
		return ErrBadVersion
	}

	pos += 4

	rcrdCnt := binary.LittleEndian.Uint64(body[pos : pos+8])
	pos += 8

	for i := uint64(0); i < rcrdCnt; i++ {
		if pos+KeySize+8 > len(body) {
			return fmt.Errorf("%w: truncated dump record %d", ErrIO, i)
		}

		keyBlock := body[pos : pos+KeySize]
		pos += KeySize

		dataSize := binary.LittleEndian.Uint64(body[pos : pos+8])
		pos += 8

		if pos+int(dataSize) > len(body) {
			return fmt.Errorf("%w: truncated dump record %d data", ErrIO, i)
		}

		data := body[pos : pos+int(dataSize)]
		pos += int(dataSize)

		key := truncateKey(keyBlock)

		if err := db.PutWithContentType(key, data, ""); err != nil {
			return err
		}
	}

	return nil
}
