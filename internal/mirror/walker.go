package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
)

const defaultPageSize = 100

// Thread is one remote conversation with its messages in provider order.
type Thread struct {
	ID       gc.ThreadID
	Subject  string
	Labels   []string
	Messages []Message
}

// Message identifies a remote message; its content is fetched separately.
type Message struct {
	ID       gc.MessageID
	Seq      int // 1-based position within the thread
	ThreadID gc.ThreadID
}

// ThreadIterator yields threads until it returns io.EOF. It cannot be restarted.
type ThreadIterator interface {
	Next(ctx context.Context) (Thread, error)
}

// Walker lists the threads matching a Selector through the Gmail client.
type Walker struct {
	Client   gc.Client
	Folders  []gc.Folder
	PageSize int
	Log      *slog.Logger
}

func NewWalker(client gc.Client, folders []gc.Folder, pageSize int, logger *slog.Logger) *Walker {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Walker{Client: client, Folders: folders, PageSize: pageSize, Log: logger}
}

// Walk starts one remote query. An unknown label yields an empty sequence.
func (w *Walker) Walk(ctx context.Context, sel Selector) (ThreadIterator, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	byName, byID, err := w.Client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	it := &threadIter{client: w.Client, pageSize: w.PageSize, names: byID}

	switch sel.Kind {
	case KindFolder:
		f, ok := gc.FindFolder(w.Folders, sel.Value)
		if !ok {
			w.Log.Warn("unknown folder", "folder", sel.Value)
			it.done = true
			return it, nil
		}
		it.query = f.Query
	case KindLabel:
		id, ok := byName[sel.Value]
		if !ok {
			w.Log.Warn("unknown label", "label", sel.Value)
			it.done = true
			return it, nil
		}
		it.query = gc.Query{LabelIDs: []gc.LabelID{id}}
	case KindQuery:
		it.query = gc.Query{Raw: sel.Value}
	}
	return it, nil
}

// Fetch returns the raw RFC 822 bytes of a message.
func (w *Walker) Fetch(ctx context.Context, id gc.MessageID) ([]byte, error) {
	return w.Client.GetRaw(ctx, id)
}

type threadIter struct {
	client    gc.Client
	query     gc.Query
	pageSize  int
	names     map[gc.LabelID]string
	pending   []gc.ThreadID
	pageToken string
	done      bool
}

func (it *threadIter) Next(ctx context.Context) (Thread, error) {
	for len(it.pending) == 0 {
		if it.done {
			return Thread{}, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return Thread{}, err
		}
	}
	id := it.pending[0]
	it.pending = it.pending[1:]

	meta, err := it.client.GetThread(ctx, id)
	if err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	th := Thread{ID: meta.ID, Subject: meta.Subject, Labels: it.labelNames(meta.Labels())}
	for i, m := range meta.Messages {
		th.Messages = append(th.Messages, Message{ID: m.ID, Seq: i + 1, ThreadID: meta.ID})
	}
	return th, nil
}

func (it *threadIter) fetchPage(ctx context.Context) error {
	page, err := it.client.ListThreads(ctx, it.query, it.pageToken, it.pageSize)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	it.pending = page.IDs
	it.pageToken = page.NextPageToken
	if it.pageToken == "" {
		it.done = true
	}
	return nil
}

func (it *threadIter) labelNames(ids []gc.LabelID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := it.names[id]; ok {
			out = append(out, name)
			continue
		}
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}
