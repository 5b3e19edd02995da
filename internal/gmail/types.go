// internal/gmail/types.go
package gmail

type MessageID string
type ThreadID string
type LabelID string

// ThreadPage is one page of a thread listing.
type ThreadPage struct {
	IDs           []ThreadID
	NextPageToken string
}

// MessageRef identifies a message inside a thread without its content.
type MessageRef struct {
	ID     MessageID
	Labels []LabelID
}

type ThreadMeta struct {
	ID       ThreadID
	Subject  string
	Messages []MessageRef // provider order
}

// Labels returns the union of the message label IDs in first-seen order.
func (t ThreadMeta) Labels() []LabelID {
	seen := map[LabelID]struct{}{}
	var out []LabelID
	for _, m := range t.Messages {
		for _, l := range m.Labels {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

type Query struct {
	Raw              string // Gmail search string, already formed (e.g., `from:alice has:attachment`)
	LabelIDs         []LabelID
	IncludeSpamTrash bool
}
