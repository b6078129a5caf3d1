package models

// EventType 标识项目变更事件
type EventType string

const (
	EventFileCreated    EventType = "file.created"
	EventFileUpdated    EventType = "file.updated"
	EventFileDeleted    EventType = "file.deleted"
	EventFilesImported  EventType = "files.imported"
	EventProjectDeleted EventType = "project.deleted"
)

// ProjectEvent 是推送给订阅者的项目变更
type ProjectEvent struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id"`
	FileID    string    `json:"file_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Count     int       `json:"count,omitempty"`
}
