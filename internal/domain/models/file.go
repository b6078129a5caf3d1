package models

import (
	"stelgent-web/pkg/types"
)

// FileRecord alias to unified model
type FileRecord = types.FileRecord

// FileType alias to unified model
type FileType = types.FileType

// TreeNode alias to unified model
type TreeNode = types.TreeNode

// Project alias to unified model
type Project = types.Project

// User alias to unified model
type User = types.User

const (
	FileTypeFile   = types.FileTypeFile
	FileTypeFolder = types.FileTypeFolder
)

// 领域错误
var (
	ErrNotFound         = types.ErrNotFound
	ErrConflict         = types.ErrConflict
	ErrInvalidPath      = types.ErrInvalidPath
	ErrNoEntryHTML      = types.ErrNoEntryHTML
	ErrUnauthenticated  = types.ErrUnauthenticated
	ErrInvalidPublicKey = types.ErrInvalidPublicKey
	ErrInvalidArgument  = types.ErrInvalidArgument
)

// FileDraft 是待写入的文件（导入、新建时使用，尚无 ID）
type FileDraft struct {
	Path    string   `json:"path"`
	Type    FileType `json:"type"`
	Content string   `json:"content"`
}

// FileUpdate 是对已有文件的部分更新
type FileUpdate struct {
	Path    *string `json:"path,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ImportResult alias to unified model
type ImportResult = types.ImportResult

// NewTreeNode alias to unified function
func NewTreeNode(name, path string, isDir bool) *TreeNode {
	return types.NewTreeNode(name, path, isDir)
}
