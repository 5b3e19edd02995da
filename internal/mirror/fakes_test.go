package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote serves a fixed list of threads.
type fakeRemote struct {
	threads  []Thread
	fetched  []gc.MessageID
	fetchErr error
	walkErr  error
	onFetch  func(id gc.MessageID)
	raw      func(id gc.MessageID) []byte
	walked   []Selector
}

func (f *fakeRemote) Walk(_ context.Context, sel Selector) (ThreadIterator, error) {
	f.walked = append(f.walked, sel)
	if f.walkErr != nil {
		return nil, f.walkErr
	}
	return &sliceIter{threads: append([]Thread(nil), f.threads...)}, nil
}

func (f *fakeRemote) Fetch(_ context.Context, id gc.MessageID) ([]byte, error) {
	f.fetched = append(f.fetched, id)
	if f.onFetch != nil {
		f.onFetch(id)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.raw != nil {
		return f.raw(id), nil
	}
	return []byte(fmt.Sprintf("Subject: message %s\r\n\r\nbody %s\r\n", id, id)), nil
}

type sliceIter struct {
	threads []Thread
}

func (s *sliceIter) Next(_ context.Context) (Thread, error) {
	if len(s.threads) == 0 {
		return Thread{}, io.EOF
	}
	th := s.threads[0]
	s.threads = s.threads[1:]
	return th, nil
}

func thread(id string, labels []string, msgIDs ...string) Thread {
	th := Thread{ID: gc.ThreadID(id), Labels: labels}
	for i, m := range msgIDs {
		th.Messages = append(th.Messages, Message{ID: gc.MessageID(m), Seq: i + 1, ThreadID: gc.ThreadID(id)})
	}
	return th
}

// memArchive is an in-memory Archive; an empty id marks an untagged record.
type memArchive struct {
	ids         []string
	raws        [][]byte
	closed      int
	removeCalls int
	appendErr   error
	order       *[]string
}

func newMemArchive(ids ...string) *memArchive {
	a := &memArchive{}
	for _, id := range ids {
		a.ids = append(a.ids, id)
		a.raws = append(a.raws, nil)
	}
	return a
}

func (a *memArchive) Len() int { return len(a.ids) }

func (a *memArchive) Identity(pos int) (string, bool) {
	if pos < 0 || pos >= len(a.ids) || a.ids[pos] == "" {
		return "", false
	}
	return a.ids[pos], true
}

func (a *memArchive) Append(id string, raw []byte) (int, error) {
	if a.appendErr != nil {
		return 0, a.appendErr
	}
	a.ids = append(a.ids, id)
	a.raws = append(a.raws, raw)
	return len(a.ids) - 1, nil
}

func (a *memArchive) RemoveAll(positions []int) error {
	drop := map[int]bool{}
	for _, pos := range positions {
		if pos < 0 || pos >= len(a.ids) {
			return fmt.Errorf("position %d out of range", pos)
		}
		drop[pos] = true
	}
	a.removeCalls++
	var ids []string
	var raws [][]byte
	for i := range a.ids {
		if !drop[i] {
			ids = append(ids, a.ids[i])
			raws = append(raws, a.raws[i])
		}
	}
	a.ids, a.raws = ids, raws
	return nil
}

func (a *memArchive) Close() error {
	a.closed++
	if a.order != nil {
		*a.order = append(*a.order, "archive")
	}
	return nil
}

// logSink is a metadata log destination that records when it is closed.
type logSink struct {
	bytes.Buffer
	name   string
	closed int
	order  *[]string
}

func (l *logSink) Close() error {
	l.closed++
	if l.order != nil {
		*l.order = append(*l.order, l.name)
	}
	return nil
}

// sleepRecorder replaces Service.Sleep and never blocks.
type sleepRecorder struct {
	calls []time.Duration
	hook  func(n int)
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	if r.hook != nil {
		r.hook(len(r.calls))
	}
	return ctx.Err()
}
