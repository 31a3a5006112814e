package jardb

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Append-only log command verbs. JAR records an insert-or-update; SCOOP
// records a delete. JAR does not distinguish insert from update (OQ4) -
// replay is upsert-safe either way.
const (
	cmdJar   = "JAR"
	cmdScoop = "SCOOP"
)

// aolWriter owns the open append-only log file descriptor. Commands are
// framed as one newline-terminated ASCII line per mutation, with the key
// and value hex-encoded so that arbitrary binary data stays representable
// as text (the distilled spec leaves this escaping to the AOL subsystem).
type aolWriter struct {
	f *os.File
}

func openAOL(path string) (*aolWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644) //nolint:gosec // matches dump file permissions
	if err != nil {
		return nil, err
	}

	return &aolWriter{f: f}, nil
}

func (w *aolWriter) writeJar(key, value []byte) error {
	line := fmt.Sprintf("%s %s %s\n", cmdJar, hex.EncodeToString(key), hex.EncodeToString(value))
	_, err := w.f.WriteString(line)

	return err
}

func (w *aolWriter) writeScoop(key []byte) error {
	line := fmt.Sprintf("%s %s\n", cmdScoop, hex.EncodeToString(key))
	_, err := w.f.WriteString(line)

	return err
}

func (w *aolWriter) close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}

	return w.f.Close()
}

// writeJAR appends a JAR record after the in-memory mutation has already
// been applied, gated by I4: no AOL writes are allowed while state ==
// stateStartup (the replay path below holds that state throughout).
func (db *Database) writeJAR(key, value []byte) error {
	if db.aol == nil || db.state != stateAOKAY {
		return nil
	}

	return db.aol.writeJar(key, value)
}

func (db *Database) writeSCOOP(key []byte) error {
	if db.aol == nil || db.state != stateAOKAY {
		return nil
	}

	return db.aol.writeScoop(key)
}

// replayAOL re-applies every recorded mutation, in order, while state ==
// stateStartup so that P10/I4 hold: replay must never itself append to
// the log it is reading.
func (db *Database) replayAOL() error {
	f, err := os.Open(db.aolPath) //nolint:gosec // path is derived from validated options
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)

	for scanner.Scan() {
		if err := db.applyAOLLine(scanner.Text()); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (db *Database) applyAOLLine(line string) error {
	if line == "" {
		return nil
	}

	verb, _, _ := strings.Cut(line, " ")

	switch verb {
	case cmdJar:
		// SplitN, not Fields: a zero-length value (data_size == 0 is
		// valid, §3) hex-encodes to "", which Fields would collapse
		// away, losing the third field.
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return ErrMalformedAOLLine
		}

		key, err := hex.DecodeString(fields[1])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedAOLLine, err)
		}

		value, err := hex.DecodeString(fields[2])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedAOLLine, err)
		}

		return db.PutWithContentType(key, value, "")
	case cmdScoop:
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return ErrMalformedAOLLine
		}

		key, err := hex.DecodeString(fields[1])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedAOLLine, err)
		}

		err = db.Delete(key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		return nil
	default:
		return ErrMalformedAOLLine
	}
}
