package types

import (
	"bytes"
	"sort"
	"time"
)

// FileType is the kind of a FileRecord.
type FileType string

const (
	FileTypeFile   FileType = "file"
	FileTypeFolder FileType = "folder"
)

// Valid reports whether t is one of the known file types.
func (t FileType) Valid() bool {
	return t == FileTypeFile || t == FileTypeFolder
}

// FileRecord is a single file or folder entry of a project.
type FileRecord struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Type      FileType  `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IsFile reports whether the record is a file (not a folder).
func (f FileRecord) IsFile() bool {
	return f.Type == FileTypeFile
}

// ImportResult summarizes one import: the records written and the paths
// that were skipped.
type ImportResult struct {
	Imported []FileRecord `json:"imported"`
	Skipped  []string     `json:"skipped"`
}

// User is a wallet-identified account.
type User struct {
	ID               string    `json:"id"`
	StellarPublicKey string    `json:"stellar_public_key"`
	OpenAIAPIKey     *string   `json:"openai_api_key"`
	CreatedAt        time.Time `json:"-"`
}

// Project groups a file collection under one owner.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TreeNode represents a node in the file tree.
//
// A leaf (IsDir == false) points at the caller's FileRecord; it is a read-only
// projection and must not be modified. An interior node owns Children. An
// interior node built from an explicit folder record has Explicit set and
// File pointing at that record.
type TreeNode struct {
	Name     string               `json:"name"`
	Path     string               `json:"path"`
	IsDir    bool                 `json:"is_dir"`
	Explicit bool                 `json:"explicit,omitempty"`
	File     *FileRecord          `json:"file,omitempty"`
	Children map[string]*TreeNode `json:"children,omitempty"`

	order []string
}

// NewTreeNode creates a new tree node
func NewTreeNode(name, path string, isDir bool) *TreeNode {
	n := &TreeNode{
		Name:  name,
		Path:  path,
		IsDir: isDir,
	}
	if isDir {
		n.Children = make(map[string]*TreeNode)
	}
	return n
}

// Child returns the child named name, or nil.
func (n *TreeNode) Child(name string) *TreeNode {
	if n == nil || n.Children == nil {
		return nil
	}
	return n.Children[name]
}

// SetChild stores child under name. The first insertion of a name fixes its
// position in ChildNames; replacing an existing child keeps that position.
func (n *TreeNode) SetChild(name string, child *TreeNode) {
	if n.Children == nil {
		n.Children = make(map[string]*TreeNode)
	}
	if _, exists := n.Children[name]; !exists {
		n.order = append(n.order, name)
	}
	n.Children[name] = child
}

// ChildNames returns child names in insertion order. Nodes decoded from JSON
// carry no insertion order and report their names sorted.
func (n *TreeNode) ChildNames() []string {
	if n == nil {
		return nil
	}
	if len(n.order) == len(n.Children) {
		names := make([]string, len(n.order))
		copy(names, n.order)
		return names
	}
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedChildren returns children with directories first, then by name.
func (n *TreeNode) SortedChildren() []*TreeNode {
	children := make([]*TreeNode, 0, len(n.Children))
	for _, name := range n.ChildNames() {
		children = append(children, n.Children[name])
	}
	sort.SliceStable(children, func(i, j int) bool {
		// Directories first, then sort by name
		if children[i].IsDir != children[j].IsDir {
			return children[i].IsDir
		}
		return children[i].Name < children[j].Name
	})
	return children
}

// Print recursively prints the file tree
func (n *TreeNode) Print(buffer *bytes.Buffer, prefix string, isLast bool) {
	if n.Name != "" {
		buffer.WriteString(prefix)
		if isLast {
			buffer.WriteString("└── ")
			prefix += "    "
		} else {
			buffer.WriteString("├── ")
			prefix += "│   "
		}
		buffer.WriteString(n.Name)
		if n.IsDir {
			buffer.WriteString("/")
		}
		buffer.WriteString("\n")
	}

	children := n.SortedChildren()
	for i, child := range children {
		child.Print(buffer, prefix, i == len(children)-1)
	}
}

// Leaves returns every leaf below n in depth-first insertion order.
func (n *TreeNode) Leaves() []*TreeNode {
	var out []*TreeNode
	var walk func(*TreeNode)
	walk = func(node *TreeNode) {
		if !node.IsDir {
			out = append(out, node)
			return
		}
		for _, name := range node.ChildNames() {
			walk(node.Children[name])
		}
	}
	walk(n)
	return out
}
