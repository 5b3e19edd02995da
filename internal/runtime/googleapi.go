// internal/runtime/googleapi.go adapts *gmail.Service to the gmail.Client interface.
package runtime

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
	"github.com/joshsymonds/gmarchive/internal/rate"
)

const me = "me"

type googleClient struct {
	svc  *gmail.Service
	rate rate.Limiter
}

// NewGoogleAPIClient wraps svc; limiter may be nil to disable request gating.
func NewGoogleAPIClient(svc *gmail.Service, limiter rate.Limiter) *googleClient {
	return &googleClient{svc: svc, rate: limiter}
}

func (g *googleClient) wait(ctx context.Context) error {
	if g.rate == nil {
		return nil
	}
	return g.rate.Wait(ctx)
}

func (g *googleClient) ListThreads(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ThreadPage, error) {
	if err := g.wait(ctx); err != nil {
		return gc.ThreadPage{}, err
	}
	call := g.svc.Users.Threads.List(me).MaxResults(int64(pageSize)).IncludeSpamTrash(q.IncludeSpamTrash)
	if q.Raw != "" {
		call = call.Q(q.Raw)
	}
	if len(q.LabelIDs) > 0 {
		call = call.LabelIds(toStringsL(q.LabelIDs)...)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ThreadPage{}, fmt.Errorf("list threads: %w", err)
	}
	page := gc.ThreadPage{NextPageToken: res.NextPageToken}
	for _, t := range res.Threads {
		page.IDs = append(page.IDs, gc.ThreadID(t.Id))
	}
	return page, nil
}

func (g *googleClient) GetThread(ctx context.Context, id gc.ThreadID) (gc.ThreadMeta, error) {
	if err := g.wait(ctx); err != nil {
		return gc.ThreadMeta{}, err
	}
	th, err := g.svc.Users.Threads.Get(me, string(id)).Format("metadata").MetadataHeaders("Subject").Context(ctx).Do()
	if err != nil {
		return gc.ThreadMeta{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	meta := gc.ThreadMeta{ID: id}
	for _, m := range th.Messages {
		if meta.Subject == "" && m.Payload != nil {
			for _, hd := range m.Payload.Headers {
				if hd.Name == "Subject" {
					meta.Subject = hd.Value
				}
			}
		}
		meta.Messages = append(meta.Messages, gc.MessageRef{ID: gc.MessageID(m.Id), Labels: toLabelIDs(m.LabelIds)})
	}
	return meta, nil
}

func (g *googleClient) GetRaw(ctx context.Context, id gc.MessageID) ([]byte, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	msg, err := g.svc.Users.Messages.Get(me, string(id)).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return raw, nil
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	if err := g.wait(ctx); err != nil {
		return nil, nil, err
	}
	lr, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("list labels: %w", err)
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

// decodeRaw accepts the URL-safe alphabet with or without padding.
func decodeRaw(data string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(data)
}

func toStringsL(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}

var _ gc.Client = (*googleClient)(nil)
