// Package dbmodel provides a deliberately simple, in-memory reference
// model of jardb.Database's observable behavior. The model is intentionally
// easy to audit: it favors clarity over performance and is used only to
// cross-check the real implementation in tests, never shipped as part of
// the store itself.
package dbmodel

// Record is the observable state of one key the model tracks.
type Record struct {
	Value       []byte
	ContentType string
}

// Model shadows a jardb.Database using a plain Go map keyed by the
// truncated key, so property tests can assert "the real store agrees with
// the obvious, slow implementation" without duplicating jardb's hashing or
// chaining logic.
type Model struct {
	keySize int
	records map[string]Record
}

// New returns an empty model truncating keys to keySize bytes, mirroring
// jardb.KeySize.
func New(keySize int) *Model {
	return &Model{
		keySize: keySize,
		records: make(map[string]Record),
	}
}

// Truncate reproduces jardb's key-truncation rule: cut to keySize bytes,
// then cut further at the first zero byte.
func (m *Model) Truncate(key []byte) []byte {
	if len(key) > m.keySize {
		key = key[:m.keySize]
	}

	for i, b := range key {
		if b == 0 {
			return key[:i]
		}
	}

	return key
}

// Put upserts key -> value with the given content type (empty means the
// default) into the model.
func (m *Model) Put(key, value []byte, contentType string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	k := string(m.Truncate(key))
	m.records[k] = Record{
		Value:       append([]byte(nil), value...),
		ContentType: contentType,
	}
}

// Get returns the model's value for key and whether it is present.
func (m *Model) Get(key []byte) ([]byte, bool) {
	r, ok := m.records[string(m.Truncate(key))]
	if !ok {
		return nil, false
	}

	return r.Value, true
}

// Delete removes key from the model, reporting whether it was present.
func (m *Model) Delete(key []byte) bool {
	k := string(m.Truncate(key))

	if _, ok := m.records[k]; !ok {
		return false
	}

	delete(m.records, k)

	return true
}

// Len returns the number of live records the model tracks.
func (m *Model) Len() int {
	return len(m.records)
}

// Snapshot returns a copy of every (truncated key, value) pair the model
// currently holds, for comparison against a real Database's enumerated
// contents via go-cmp.
func (m *Model) Snapshot() map[string][]byte {
	out := make(map[string][]byte, len(m.records))
	for k, r := range m.records {
		out[k] = append([]byte(nil), r.Value...)
	}

	return out
}
