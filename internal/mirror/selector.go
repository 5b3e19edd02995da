package mirror

import (
	"errors"
	"fmt"
	"strings"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
)

// ErrNoSelector is returned when neither a label nor a query was supplied.
var ErrNoSelector = errors.New("no folder, label or query selected")

type Kind int

const (
	KindFolder Kind = iota + 1
	KindLabel
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindLabel:
		return "label"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Selector names the remote scope of a session: exactly one folder, label or query.
type Selector struct {
	Kind  Kind
	Value string // folder name, label name or query text
}

func Folder(name string) Selector { return Selector{Kind: KindFolder, Value: name} }
func Label(name string) Selector { return Selector{Kind: KindLabel, Value: name} }
func Query(text string) Selector { return Selector{Kind: KindQuery, Value: text} }
func (s Selector) String() string { return s.Kind.String() + ":" + s.Value }
func (s Selector) IsZero() bool { return s.Kind == 0 }

// ResolveSelector picks the session scope. A label wins over a query; a label
// naming one of folders becomes a folder selector.
func ResolveSelector(label, query string, folders []gc.Folder) (Selector, error) {
	label = strings.TrimSpace(label)
	if label != "" {
		if f, ok := gc.FindFolder(folders, label); ok {
			return Folder(f.Name), nil
		}
		return Label(label), nil
	}
	if strings.TrimSpace(query) != "" {
		return Query(query), nil
	}
	return Selector{}, ErrNoSelector
}

func (s Selector) validate() error {
	switch s.Kind {
	case KindFolder, KindLabel, KindQuery:
	default:
		return ErrNoSelector
	}
	if strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("empty %s selector: %w", s.Kind, ErrNoSelector)
	}
	return nil
}
