package gmail

import "strings"

// Folder describes one of Gmail's fixed system views.
type Folder struct {
	Name  string
	Query Query
}

// StandardFolders returns the system views offered alongside user labels,
// in the order they are presented to the user.
func StandardFolders() []Folder {
	return []Folder{
		{Name: "inbox", Query: Query{LabelIDs: []LabelID{"INBOX"}}},
		{Name: "starred", Query: Query{LabelIDs: []LabelID{"STARRED"}}},
		{Name: "all", Query: Query{}},
		{Name: "drafts", Query: Query{LabelIDs: []LabelID{"DRAFT"}}},
		{Name: "sent", Query: Query{LabelIDs: []LabelID{"SENT"}}},
		{Name: "spam", Query: Query{LabelIDs: []LabelID{"SPAM"}, IncludeSpamTrash: true}},
		{Name: "trash", Query: Query{LabelIDs: []LabelID{"TRASH"}, IncludeSpamTrash: true}},
	}
}

// FindFolder looks a folder up by name, ignoring case.
func FindFolder(folders []Folder, name string) (Folder, bool) {
	for _, f := range folders {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Folder{}, false
}
