package services

import "time"

const (
	EventUploadCreated    = "upload.created"
	EventUploadUpdated    = "upload.updated"
	EventUploadDeleted    = "upload.deleted"
	EventCompositeCreated = "composite.created"
	EventCompositeDeleted = "composite.deleted"
)

// Event describes one record change.
type Event struct {
	Type         string    `json:"type"`
	StoredName   string    `json:"storedName,omitempty"`
	RelativePath string    `json:"relativePath,omitempty"`
	At           time.Time `json:"at"`
}

// Notifier receives record changes after they are persisted. Publish must not block.
type Notifier interface {
	Publish(Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
