package mirror

import (
	"fmt"
	"time"
)

// Outcome is the per-message decision of a session.
type Outcome int

const (
	Append Outcome = iota
	SkipDuplicate
	SkipNoDownload
)

func (o Outcome) String() string {
	switch o {
	case Append:
		return "append"
	case SkipDuplicate:
		return "skip-duplicate"
	case SkipNoDownload:
		return "skip-no-download"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) Skipped() bool { return o != Append }

// Classify decides what happens to one remote message. With downloads off
// every message is treated as already archived.
func Classify(inArchive, download bool) Outcome {
	if !download {
		return SkipNoDownload
	}
	if inArchive {
		return SkipDuplicate
	}
	return Append
}

// StaleIdentities returns the archived identities absent from seen.
func StaleIdentities(archived, seen map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for id := range archived {
		if _, ok := seen[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// DelayPolicy paces remote access. The single-delay variant is
// {Message: d, Thread: d, SkippedThread: d}.
type DelayPolicy struct {
	Message       time.Duration
	Thread        time.Duration
	SkippedThread time.Duration
}

func (d DelayPolicy) Validate() error {
	if d.Message < 0 || d.Thread < 0 || d.SkippedThread < 0 {
		return fmt.Errorf("negative delay in %+v", d)
	}
	return nil
}

// ThreadDelay is the pause after a thread; allSkipped means no message of the
// thread was appended.
func (d DelayPolicy) ThreadDelay(allSkipped bool) time.Duration {
	if allSkipped {
		return d.SkippedThread
	}
	return d.Thread
}

// MessageDelay is the pause after one message. Appends paid for a fetch; a
// no-download skip of a message missing from the archive would have.
func (d DelayPolicy) MessageDelay(o Outcome, inArchive bool) time.Duration {
	switch {
	case o == Append:
		return d.Message
	case o == SkipNoDownload && !inArchive:
		return d.Message
	default:
		return 0
	}
}
