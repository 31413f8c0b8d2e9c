package sync

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const memRootID = "root"

type memNode struct {
	Entry
	parent string
	data   []byte
}

// memRemote is an in-memory Remote for testing.
type memRemote struct {
	nodes  map[string]*memNode
	nextID int

	lists       []string
	mkdirCalls  []string
	createCalls []string
	updateCalls []string
	deleteCalls []string
}

func newMemRemote() *memRemote {
	m := &memRemote{nodes: make(map[string]*memNode)}
	m.nodes[memRootID] = &memNode{Entry: Entry{ID: memRootID, Name: "root", Folder: true}}
	return m
}

func (m *memRemote) add(parent string, e Entry, data []byte) *memNode {
	m.nextID++
	e.ID = fmt.Sprintf("id%d", m.nextID)
	n := &memNode{Entry: e, parent: parent, data: data}
	m.nodes[e.ID] = n
	return n
}

// seedFile places a file directly into the remote without recording a call.
func (m *memRemote) seedFile(parent, name, content string, modTime time.Time) *memNode {
	return m.add(parent, Entry{Name: name, Size: int64(len(content)), ModTime: modTime}, []byte(content))
}

func (m *memRemote) seedFolder(parent, name string) *memNode {
	return m.add(parent, Entry{Name: name, Folder: true}, nil)
}

// find resolves a slash separated path below the root.
func (m *memRemote) find(path string) *memNode {
	cur := memRootID
	for _, part := range strings.Split(path, "/") {
		next := ""
		for id, n := range m.nodes {
			if n.parent == cur && n.Name == part {
				next = id
				break
			}
		}
		if next == "" {
			return nil
		}
		cur = next
	}
	return m.nodes[cur]
}

func (m *memRemote) children(parent string) []*memNode {
	var out []*memNode
	for _, n := range m.nodes {
		if n.parent == parent && n.ID != memRootID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRemote) Folder(_ context.Context, id string) (*Entry, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !n.Folder {
		return nil, ErrNotFolder
	}
	e := n.Entry
	return &e, nil
}

func (m *memRemote) List(_ context.Context, parentID string) ([]Entry, error) {
	m.lists = append(m.lists, parentID)
	var entries []Entry
	for _, n := range m.children(parentID) {
		entries = append(entries, n.Entry)
	}
	return entries, nil
}

func (m *memRemote) CreateFolder(_ context.Context, parentID, name string) (*Entry, error) {
	m.mkdirCalls = append(m.mkdirCalls, name)
	n := m.seedFolder(parentID, name)
	e := n.Entry
	return &e, nil
}

func (m *memRemote) Create(_ context.Context, parentID string, obj Object) (*Entry, error) {
	m.createCalls = append(m.createCalls, obj.Name)
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, err
	}
	n := m.add(parentID, Entry{Name: obj.Name, Size: obj.Size, ModTime: obj.ModTime}, data)
	e := n.Entry
	return &e, nil
}

func (m *memRemote) Update(_ context.Context, id string, obj Object) (*Entry, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.updateCalls = append(m.updateCalls, n.Name)
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, err
	}
	n.data, n.Size, n.ModTime = data, obj.Size, obj.ModTime
	e := n.Entry
	return &e, nil
}

func (m *memRemote) Delete(_ context.Context, id string) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrNotFound
	}
	m.deleteCalls = append(m.deleteCalls, n.Name)
	m.remove(id)
	return nil
}

func (m *memRemote) remove(id string) {
	for _, c := range m.children(id) {
		m.remove(c.ID)
	}
	delete(m.nodes, id)
}

func (m *memRemote) resetCalls() {
	m.lists, m.mkdirCalls, m.createCalls, m.updateCalls, m.deleteCalls = nil, nil, nil, nil, nil
}
