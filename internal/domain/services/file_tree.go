package services

import (
	"bytes"
	"sort"
	"strings"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/types"
)

// BuildTree 将扁平的文件记录构建为目录树。
//
// 记录按输入顺序处理：最后一段且类型为 file 时创建（或覆盖）叶子节点；
// 其他情况创建目录节点，已存在的叶子被目录节点替换（后写者胜出）。
// folder 记录得到一个 Explicit 的目录节点，不会产生叶子。
// 叶子节点的 File 指向 files 中的元素，调用方不得修改。
func BuildTree(files []models.FileRecord) *models.TreeNode {
	root := models.NewTreeNode("", "", true)

	for i := range files {
		rec := &files[i]
		if rec.Path == "" {
			continue
		}

		parts := types.SplitPath(rec.Path)
		current := root
		for j, part := range parts {
			isLast := j == len(parts)-1
			if isLast && rec.IsFile() {
				leaf := models.NewTreeNode(part, rec.Path, false)
				leaf.File = rec
				current.SetChild(part, leaf)
				break
			}

			node := current.Child(part)
			if node == nil || !node.IsDir {
				node = models.NewTreeNode(part, strings.Join(parts[:j+1], "/"), true)
				current.SetChild(part, node)
			}
			if isLast {
				node.Explicit = true
				node.File = rec
			}
			current = node
		}
	}

	return root
}

// FormatTree 以树形文本输出目录结构
func FormatTree(root *models.TreeNode) string {
	var buf bytes.Buffer
	root.Print(&buf, "", true)
	return buf.String()
}

// ViewState 是文件树的界面状态：展开的目录、选中的文件、正在重命名的文件。
// 它由表现层持有，作为普通数据传入 FlattenTree。
type ViewState struct {
	Expanded  []string `json:"expanded,omitempty"`
	ExpandAll bool     `json:"expand_all,omitempty"`
	Selected  string   `json:"selected,omitempty"`
	Renaming  string   `json:"renaming,omitempty"`
}

// IsExpanded 检查目录是否展开
func (s ViewState) IsExpanded(path string) bool {
	if s.ExpandAll {
		return true
	}
	for _, p := range s.Expanded {
		if p == path {
			return true
		}
	}
	return false
}

// Toggle 返回切换 path 展开状态后的新状态，原状态不变
func (s ViewState) Toggle(path string) ViewState {
	next := s
	next.Expanded = make([]string, 0, len(s.Expanded)+1)
	found := false
	for _, p := range s.Expanded {
		if p == path {
			found = true
			continue
		}
		next.Expanded = append(next.Expanded, p)
	}
	if !found {
		next.Expanded = append(next.Expanded, path)
		sort.Strings(next.Expanded)
	}
	return next
}

// TreeRow 是文件树中一行可见的条目
type TreeRow struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Depth    int    `json:"depth"`
	IsDir    bool   `json:"is_dir"`
	Expanded bool   `json:"expanded,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Renaming bool   `json:"renaming,omitempty"`
}

// FlattenTree 按界面状态把树展开成可见行，子节点保持插入顺序
func FlattenTree(root *models.TreeNode, state ViewState) []TreeRow {
	var rows []TreeRow
	var walk func(node *models.TreeNode, depth int)
	walk = func(node *models.TreeNode, depth int) {
		for _, name := range node.ChildNames() {
			child := node.Children[name]
			row := TreeRow{
				Name:  child.Name,
				Path:  child.Path,
				Depth: depth,
				IsDir: child.IsDir,
			}
			if child.File != nil {
				row.ID = child.File.ID
				row.Selected = state.Selected != "" && state.Selected == row.ID
				row.Renaming = state.Renaming != "" && state.Renaming == row.ID
			}
			if child.IsDir {
				row.Expanded = state.IsExpanded(child.Path)
			}
			rows = append(rows, row)
			if row.Expanded {
				walk(child, depth+1)
			}
		}
	}
	walk(root, 0)
	return rows
}
