package tree

import (
	"strings"
	"time"
)

// Node types
const (
	NodeFolder = "folder"
	NodeFile   = "file"
)

const (
	unknownSegment  = "unknown"
	systemUploader  = "System"
	statusPublished = "PUBLISHED"
)

type (
	// Node is an element of the navigation folder tree.
	Node struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		Type     string    `json:"type"`
		Path     string    `json:"path"`
		Level    int       `json:"level"`
		Children []Node    `json:"children,omitempty"`
		FileData *NoteData `json:"fileData,omitempty"`
	}

	// NoteData is the normalized note carried by file nodes.
	NoteData struct {
		PublicID       string    `json:"publicId"`
		Title          string    `json:"title"`
		Content        string    `json:"content"`
		Type           string    `json:"type"`
		Component      string    `json:"component,omitempty"`
		Department     string    `json:"department"`
		Year           string    `json:"year"`
		Section        string    `json:"section"`
		Subject        string    `json:"subject"`
		Status         string    `json:"status"`
		CurrentVersion int       `json:"currentVersion"`
		UpdatedAt      time.Time `json:"updatedAt"`
		UploadedByName string    `json:"uploadedByName"`
		Meta           Meta      `json:"meta"`
	}
)

// NowFunc is used to stamp normalized notes.
var NowFunc = time.Now

// Normalize turns the tree into the navigation folder tree.
// Folders are sorted by key, notes keep their subject order.
func Normalize(t Tree) []Node {
	now := NowFunc().UTC()
	nodes := make([]Node, 0, len(t))

	for _, dk := range SortedKeys(t) {
		dept := t[dk]
		dNode := folder(dk, "/"+dk, 0)
		for _, yk := range SortedKeys(dept) {
			year := dept[yk]
			yNode := folder(yk, dNode.Path+"/"+yk, 1)
			for _, sk := range SortedKeys(year) {
				section := year[sk]
				sNode := folder(sk, yNode.Path+"/"+sk, 2)
				for _, subk := range SortedKeys(section) {
					subNode := folder(subk, sNode.Path+"/"+subk, 3)
					for _, e := range section[subk] {
						subNode.Children = append(subNode.Children, fileNode(subNode.Path, e, now))
					}
					sNode.Children = append(sNode.Children, subNode)
				}
				yNode.Children = append(yNode.Children, sNode)
			}
			dNode.Children = append(dNode.Children, yNode)
		}
		nodes = append(nodes, dNode)
	}
	return nodes
}

func folder(key, path string, level int) Node {
	return Node{ID: key, Name: key, Type: NodeFolder, Path: path, Level: level}
}

func fileNode(subjectPath string, e Entry, now time.Time) Node {
	segments := strings.Split(strings.TrimPrefix(subjectPath, "/"), "/")
	segment := func(i int) string {
		if i < len(segments) && segments[i] != "" {
			return segments[i]
		}
		return unknownSegment
	}

	title := e.DisplayTitle()
	data := &NoteData{
		PublicID:       e.ID,
		Title:          title,
		Content:        e.Content,
		Type:           e.Type,
		Component:      e.Component,
		Department:     segment(0),
		Year:           segment(1),
		Section:        segment(2),
		Subject:        segment(3),
		Status:         statusPublished,
		CurrentVersion: 1,
		UpdatedAt:      now,
		UploadedByName: systemUploader,
		Meta:           e.Meta,
	}

	return Node{
		ID:       e.ID,
		Name:     title,
		Type:     NodeFile,
		Path:     subjectPath + "/" + e.ID,
		Level:    4,
		FileData: data,
	}
}

// FindNode returns the node at path, searching depth first.
func FindNode(nodes []Node, path string) (*Node, bool) {
	for i := range nodes {
		n := &nodes[i]
		if n.Path == path {
			return n, true
		}
		if strings.HasPrefix(path, n.Path+"/") {
			return FindNode(n.Children, path)
		}
	}
	return nil, false
}
