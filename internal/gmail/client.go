package gmail

import "context"

// Client is the narrow Gmail surface required by gmarchive.
type Client interface {
	ListThreads(ctx context.Context, q Query, pageToken string, pageSize int) (ThreadPage, error)
	GetThread(ctx context.Context, id ThreadID) (ThreadMeta, error)
	GetRaw(ctx context.Context, id MessageID) ([]byte, error)
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
}
