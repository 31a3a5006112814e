package jardb

import (
	"fmt"
	"io"
	"os"
)

// Diag receives diagnostic lines the store itself has no opinion on how to
// route: chain-depth warnings and a freed-count mismatch on Close. Open
// does not read the dump file, and Load reports a corrupt dump only through
// its returned error. The core never calls fmt.Print* or the log package
// directly.
type Diag interface {
	Warnf(format string, args ...any)
}

// writerDiag adapts an io.Writer into a Diag, matching the format the
// CLI-facing IO type elsewhere in this codebase uses for warnings.
type writerDiag struct {
	out io.Writer
}

// NewDiag returns a Diag that writes one "warning: ..." line per call to w.
func NewDiag(w io.Writer) Diag {
	return &writerDiag{out: w}
}

func (d *writerDiag) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, "warning: "+format+"\n", args...)
}

// defaultDiag is used when Options.Diag is left nil.
func defaultDiag() Diag {
	return NewDiag(os.Stderr)
}

// discardDiag silently drops every diagnostic; useful for tests that assert
// on behavior rather than side-channel output.
type discardDiag struct{}

func (discardDiag) Warnf(string, ...any) {}

// NewDiscardDiag returns a Diag that drops every message.
func NewDiscardDiag() Diag { return discardDiag{} }
