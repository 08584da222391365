package domain

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorAdmin   ActorType = "admin"
	ActorTeacher ActorType = "teacher"
	ActorStudent ActorType = "student"
	ActorSystem  ActorType = "system"
)

func (a ActorType) Valid() bool {
	switch a {
	case ActorAdmin, ActorTeacher, ActorStudent, ActorSystem:
		return true
	default:
		return false
	}
}

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryUserManagement Category = "user_management"
	CategoryCourseContent  Category = "course_content"
	CategoryEnrollment     Category = "enrollment"
	CategoryPayment        Category = "payment"
	CategoryCommunication  Category = "communication"
	CategorySystem         Category = "system"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAuthentication, CategoryUserManagement, CategoryCourseContent,
		CategoryEnrollment, CategoryPayment, CategoryCommunication, CategorySystem:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusWarning:
		return true
	default:
		return false
	}
}

// Metadata is an open key/value bag attached to an event (IP address, user
// agent, before/after values). It is opaque to the store and the query engine.
type Metadata map[string]any

// SerializedSize returns the JSON-encoded size of the metadata in bytes.
// A marshal failure counts as oversized so the event is rejected rather
// than stored with an unencodable payload.
func (m Metadata) SerializedSize() int {
	if len(m) == 0 {
		return 0
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return len(raw)
}

// AuditEvent is a single entry in the audit trail. Once appended it is never
// mutated; the only delete path is bulk retention pruning by age. ActorName,
// ActorEmail and ResourceName are snapshots taken at write time so the trail
// stays legible after the underlying entity is renamed or deleted.
type AuditEvent struct {
	ID           uuid.UUID `json:"id"`
	ActorID      *string   `json:"actorId,omitempty"` // nil for system-initiated events
	ActorType    ActorType `json:"actorType"`
	ActorName    string    `json:"actorName"`
	ActorEmail   *string   `json:"actorEmail,omitempty"`
	Action       string    `json:"action"` // convention-named <entity>_<verb>
	Category     Category  `json:"category"`
	ResourceType *string   `json:"resourceType,omitempty"`
	ResourceID   *string   `json:"resourceId,omitempty"`
	ResourceName *string   `json:"resourceName,omitempty"`
	Details      string    `json:"details"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"` // assigned by the store, never trusted from callers
	Metadata     Metadata  `json:"metadata,omitempty"`
}

// Normalize validates the closed vocabularies and required fields, filling
// defaults (status falls back to success). metadataLimit is the maximum
// serialized metadata size in bytes; zero or negative disables the cap.
// Returns a ValidationError naming the offending field, or nil.
func (e *AuditEvent) Normalize(metadataLimit int) *ValidationError {
	if !e.ActorType.Valid() {
		return &ValidationError{Field: "actorType", Reason: "unknown actor type " + string(e.ActorType)}
	}
	if !e.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "unknown category " + string(e.Category)}
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(e.Status)}
	}
	if e.Action == "" {
		return &ValidationError{Field: "action", Reason: "action is required"}
	}
	if e.Details == "" {
		return &ValidationError{Field: "details", Reason: "details must be a human-readable sentence"}
	}
	if metadataLimit > 0 && e.Metadata.SerializedSize() > metadataLimit {
		return &ValidationError{Field: "metadata", Reason: "serialized metadata exceeds size limit"}
	}
	return nil
}

// HumanizeAction turns a convention-named action ("course_deleted") into a
// display label ("Course Deleted").
func HumanizeAction(action string) string {
	words := strings.Split(action, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Filter selects events for search, statistics and export. All fields are
// independently optional; the zero Filter matches the whole trail.
type Filter struct {
	ActorID      *string
	ActorType    ActorType
	Category     Category
	Status       Status
	ResourceType *string
	ResourceID   *string
	Search       string     // free-text over details, actor name and action
	Start        *time.Time // inclusive
	End          *time.Time // inclusive
}

// Stats summarizes the full filtered set, not a single page.
type Stats struct {
	TotalLogs    int      `json:"totalLogs"`
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	WarningCount int      `json:"warningCount"`
	Categories   []string `json:"categories"`
	UserTypes    []string `json:"userTypes"`
}

// EventRepository is the append-only storage contract. Append assigns the ID
// and the server-side timestamp. Search orders by timestamp descending with
// insertion ID descending as the tie-break, so pagination stays stable across
// sub-resolution write bursts.
type EventRepository interface {
	Append(ctx context.Context, e *AuditEvent) (uuid.UUID, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditEvent, int, error)
	Stats(ctx context.Context, f Filter) (*Stats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
