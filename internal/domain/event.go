package domain

import "time"

const (
	EventDocumentAdded   = "document.added"
	EventDocumentUpdated = "document.updated"
	EventDocumentDeleted = "document.deleted"
	EventStatusUpdated   = "status.updated"
)

// Event is the change notification published after a successful store call.
type Event struct {
	Type     string     `json:"type"`
	DomainID string     `json:"domainID"`
	DocType  DocType    `json:"docType"`
	DocID    Identifier `json:"docID"`
	UID      int64      `json:"uid,omitempty"`
	Payload  Fields     `json:"payload,omitempty"`
	Time     time.Time  `json:"time"`
}

func EventChannel(domainID string) string {
	return "ojstore." + domainID
}
