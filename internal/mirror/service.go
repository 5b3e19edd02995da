// Package mirror synchronizes a Gmail folder, label or search into a local
// append-only archive without duplicating messages already stored there.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
	"github.com/joshsymonds/gmarchive/internal/metalog"
)

// Remote is the Gmail side of a session.
type Remote interface {
	Walk(ctx context.Context, sel Selector) (ThreadIterator, error)
	Fetch(ctx context.Context, id gc.MessageID) ([]byte, error)
}

// Archive is the local store. RemoveAll takes positions counted before the
// removal and compacts the remaining records.
type Archive interface {
	Entries
	Append(id string, raw []byte) (int, error)
	RemoveAll(positions []int) error
	Close() error
}

type Spec struct {
	Selector   Selector
	Delays     DelayPolicy
	Delete     bool // drop archived messages no longer present remotely
	NoDownload bool // enumerate only; behave as if every message were archived
}

// Outputs are the session resources. Run closes all of them exactly once.
type Outputs struct {
	Archive Archive
	Meta    *metalog.Logger // optional
}

type Report struct {
	Selector          Selector
	Threads           int
	Messages          int
	Appended          int
	SkippedDuplicate  int
	SkippedNoDownload int
	Deleted           int
	Complete          bool
}

func (r Report) Skipped() int { return r.SkippedDuplicate + r.SkippedNoDownload }

type Service struct {
	Remote Remote
	Log    *slog.Logger
	Sleep  func(ctx context.Context, d time.Duration) error
}

func NewService(remote Remote, logger *slog.Logger) *Service {
	return &Service{Remote: remote, Log: logger, Sleep: sleepCtx}
}

type session struct {
	spec    Spec
	archive Archive
	meta    *metalog.Logger
	index   *Index
	seen    map[string]struct{}
	log     *slog.Logger
	report  *Report
}

// Run mirrors spec.Selector into out.Archive. Cancelling ctx stops the walk at
// the next message or thread boundary, skips deletion and returns a report
// with Complete=false and no error. Remote calls already in flight finish.
func (s *Service) Run(ctx context.Context, spec Spec, out Outputs) (rep Report, err error) {
	if out.Archive == nil {
		return Report{Selector: spec.Selector}, errors.New("no archive")
	}
	meta := out.Meta
	if meta == nil {
		meta = metalog.New(nil, nil)
	}
	defer func() {
		var closeErrs *multierror.Error
		if cerr := meta.Close(); cerr != nil {
			closeErrs = multierror.Append(closeErrs, cerr)
		}
		if cerr := out.Archive.Close(); cerr != nil {
			closeErrs = multierror.Append(closeErrs, cerr)
		}
		if closeErrs != nil {
			err = multierror.Append(err, closeErrs.Errors...)
		}
	}()

	rep = Report{Selector: spec.Selector}
	if err := spec.Delays.Validate(); err != nil {
		return rep, err
	}
	if err := spec.Selector.validate(); err != nil {
		return rep, err
	}

	sess := &session{
		spec:    spec,
		archive: out.Archive,
		meta:    meta,
		index:   BuildIndex(out.Archive),
		seen:    map[string]struct{}{},
		log:     s.Log.With("session", uuid.NewString(), "selector", spec.Selector.String()),
		report:  &rep,
	}
	sess.log.Debug("archive indexed", "records", out.Archive.Len(), "identities", sess.index.Len())

	// interrupts are observed at loop boundaries only
	remoteCtx := context.WithoutCancel(ctx)

	it, err := s.Remote.Walk(remoteCtx, spec.Selector)
	if err != nil {
		return rep, fmt.Errorf("walk %s: %w", spec.Selector, err)
	}

	interrupted := false
	for !interrupted {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		th, err := it.Next(remoteCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, err
		}
		rep.Threads++
		interrupted, err = s.syncThread(ctx, remoteCtx, sess, th)
		if err != nil {
			return rep, err
		}
	}

	if interrupted {
		sess.log.Info("interrupted; skipping deletion", "threads", rep.Threads)
		return rep, nil
	}
	if rep.Threads == 0 {
		// an unknown label also walks empty; deleting would wipe the archive
		sess.log.Info("no threads found")
	} else if spec.Delete {
		if err := sess.deleteStale(); err != nil {
			return rep, err
		}
	}
	rep.Complete = true
	sess.log.Info("archive session finished",
		"threads", rep.Threads,
		"appended", rep.Appended,
		"skipped_duplicate", rep.SkippedDuplicate,
		"skipped_no_download", rep.SkippedNoDownload,
		"deleted", rep.Deleted,
	)
	return rep, nil
}

// syncThread processes one thread and reports whether ctx was cancelled
// between two of its messages.
func (s *Service) syncThread(ctx, remoteCtx context.Context, sess *session, th Thread) (bool, error) {
	log := sess.log.With("thread", string(th.ID))
	log.Debug("thread", "messages", len(th.Messages), "subject", th.Subject)

	ids := make([]string, 0, len(th.Messages))
	allSkipped := true
	interrupted := false
	for i, m := range th.Messages {
		if i > 0 && ctx.Err() != nil {
			interrupted = true
			break
		}
		id := string(m.ID)
		ids = append(ids, id)
		sess.seen[id] = struct{}{}
		sess.report.Messages++

		inArchive := sess.index.Contains(id)
		outcome := Classify(inArchive, !sess.spec.NoDownload)
		switch outcome {
		case Append:
			allSkipped = false
			raw, err := s.Remote.Fetch(remoteCtx, m.ID)
			if err != nil {
				return false, fmt.Errorf("fetch message %s: %w", id, err)
			}
			pos, err := sess.archive.Append(id, raw)
			if err != nil {
				return false, fmt.Errorf("archive message %s: %w", id, err)
			}
			sess.index.Add(id, pos)
			sess.report.Appended++
		case SkipDuplicate:
			sess.report.SkippedDuplicate++
		case SkipNoDownload:
			sess.report.SkippedNoDownload++
		}
		log.Debug("message", "id", id, "seq", m.Seq, "outcome", outcome.String())
		s.pause(ctx, sess.spec.Delays.MessageDelay(outcome, inArchive))
	}

	if err := sess.meta.LogThread(string(th.ID), th.Labels); err != nil {
		return interrupted, err
	}
	if err := sess.meta.LogThreadMessageIDs(string(th.ID), ids); err != nil {
		return interrupted, err
	}
	if !interrupted {
		s.pause(ctx, sess.spec.Delays.ThreadDelay(allSkipped))
	}
	return interrupted, nil
}

// deleteStale removes archived identities not seen in this walk. Every
// position is checked against the archive right before the batch removal.
func (sess *session) deleteStale() error {
	stale := StaleIdentities(sess.index.Set(), sess.seen)
	ids := make([]string, 0, len(stale))
	for id := range stale {
		ids = append(ids, id)
	}
	ids = sess.index.ByPosition(ids)
	positions := make([]int, 0, len(ids))
	for _, id := range ids {
		pos, ok := sess.index.Position(id)
		if !ok {
			continue
		}
		if got, _ := sess.archive.Identity(pos); got != id {
			return fmt.Errorf("archive position %d holds %q, expected %q", pos, got, id)
		}
		positions = append(positions, pos)
		sess.log.Debug("deleting", "id", id, "position", pos)
	}
	if len(positions) == 0 {
		return nil
	}
	if err := sess.archive.RemoveAll(positions); err != nil {
		return fmt.Errorf("remove stale messages: %w", err)
	}
	sess.index.RemoveAll(ids)
	sess.report.Deleted += len(positions)
	return nil
}

func (s *Service) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	// a cancelled wait ends early; the caller notices at its next boundary
	_ = s.Sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
