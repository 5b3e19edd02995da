// Package metalog writes the per-thread side logs of an archive session: one
// file maps thread IDs to label sets, the other records the message IDs each
// thread contained.
package metalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Logger appends one line per thread to each configured destination. A nil
// destination discards its lines.
type Logger struct {
	labels  io.WriteCloser
	threads io.WriteCloser
	closed  bool
}

func New(labels, threads io.WriteCloser) *Logger {
	return &Logger{labels: labels, threads: threads}
}

// LogThread writes "<threadID>: ['label', ...]".
func (l *Logger) LogThread(threadID string, labels []string) error {
	return l.write(l.labels, threadID, labels)
}

// LogThreadMessageIDs writes "<threadID>: ['id', ...]" in thread order.
func (l *Logger) LogThreadMessageIDs(threadID string, ids []string) error {
	return l.write(l.threads, threadID, ids)
}

func (l *Logger) write(w io.Writer, threadID string, items []string) error {
	if w == nil || l.closed {
		return nil
	}
	if _, err := io.WriteString(w, threadID+": "+FormatList(items)+"\n"); err != nil {
		return fmt.Errorf("write thread %s: %w", threadID, err)
	}
	return nil
}

// Close closes the labels destination, then the threads destination.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var result *multierror.Error
	if l.labels != nil {
		if err := l.labels.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close labels log: %w", err))
		}
	}
	if l.threads != nil {
		if err := l.threads.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close threads log: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// FormatList renders items as a single-quoted list, e.g. ['A', 'B'].
func FormatList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(quoteReplacer.Replace(it))
		b.WriteByte('\'')
	}
	b.WriteByte(']')
	return b.String()
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
