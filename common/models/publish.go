package models

import (
	"time"

	"github.com/google/uuid"
)

// PublishState represents the lifecycle state of a publish
type PublishState string

const (
	PublishPending    PublishState = "PENDING"
	PublishCommitting PublishState = "COMMITTING"
	PublishCommitted  PublishState = "COMMITTED"
	PublishFailed     PublishState = "FAILED"
)

// Terminal reports whether a publish in this state is immutable
func (s PublishState) Terminal() bool {
	return s == PublishCommitted || s == PublishFailed
}

// Publish is a batch of items committed together for an environment.
// Maps to: publishes table
type Publish struct {
	ID uuid.UUID `db:"id" json:"id"`

	Env string `db:"env" json:"env"`

	State PublishState `db:"state" json:"state"`

	Updated time.Time `db:"updated" json:"updated"`

	Items []Item `json:"items,omitempty"`
}

// ObjectKeyAbsent is the sentinel object key meaning "remove any
// content at this URI" from the point of view of a CDN consumer.
const ObjectKeyAbsent = "absent"

// Item is one URI-to-content mapping within a publish.
// Maps to: items table
type Item struct {
	PublishID uuid.UUID `db:"publish_id" json:"publish_id,omitempty"`

	// WebURI is the CDN-root-relative path exposing this object
	WebURI string `db:"web_uri" json:"web_uri"`

	// ObjectKey is the lowercase hex SHA-256 of the content, or the
	// sentinel "absent"
	ObjectKey string `db:"object_key" json:"object_key,omitempty"`

	ContentType string `db:"content_type" json:"content_type,omitempty"`

	// LinkTo is the path targeted by a symlink item
	LinkTo string `db:"link_to" json:"link_to,omitempty"`
}

// PublishedPath records one currently live URI in an environment. It
// serves as a read-side index for "what paths exist under this alias
// subtree" during config diffing.
// Maps to: published_paths table
type PublishedPath struct {
	Env     string    `db:"env" json:"env"`
	WebURI  string    `db:"web_uri" json:"web_uri"`
	Updated time.Time `db:"updated" json:"updated"`
}
