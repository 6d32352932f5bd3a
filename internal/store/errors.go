package store

import "errors"

var (
	// ErrNotFound is returned by Update operations when the target id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStorageQuotaExceeded is returned when the device (or configured cap) is full.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidStory is returned when a story breaks the answer-key invariant
	// or carries an unknown status.
	ErrInvalidStory = errors.New("invalid story")

	// ErrInvalidRecord is returned for media, contacts and locations that are
	// missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrSchemaTooNew is returned by Open when the database was written by a
	// newer schema than the one requested.
	ErrSchemaTooNew = errors.New("database schema is newer than requested")

	// ErrCollectionUnavailable is returned when a collection does not exist at
	// the schema version the store was opened with.
	ErrCollectionUnavailable = errors.New("collection not available at this schema version")
)
