package export

import (
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// countingWriter counts and hashes every byte that reaches w.
type countingWriter struct {
	w      io.Writer
	count  int64
	hasher *xxh3.Hasher
}

func newCountingWriter(w io.Writer) *countingWriter {
	return &countingWriter{w: w, hasher: xxh3.New()}
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	_, _ = cw.hasher.Write(p[:n])
	return n, err
}

func (cw *countingWriter) checksum() string {
	return fmt.Sprintf("%016x", cw.hasher.Sum64())
}

func stringify(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
