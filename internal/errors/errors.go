package errors

import (
	"errors"
)

// Validation errors: the caller's fault, reported synchronously, nothing was
// mutated. Safe to fix the input and retry.
var (
	// ErrInvalidJSON is returned when a payload is not valid UTF-8 JSON.
	ErrInvalidJSON = errors.New("payload must be valid JSON")

	// ErrNotJSONObject is returned when a document payload is valid JSON but
	// not an object.
	ErrNotJSONObject = errors.New("document is not a JSON object")

	// ErrUnknownSelector is returned for an unrecognized key inside the
	// reserved temporal selector field.
	ErrUnknownSelector = errors.New("unrecognized temporal selector")

	// ErrBadRange is returned when an inrange selector is not a two-element
	// array or both ends are null.
	ErrBadRange = errors.New("inrange selector requires two elements with at least one concrete timestamp")

	// ErrHistoricMutation is returned when an update/delete pattern targets a
	// version whose interval end is already concrete.
	ErrHistoricMutation = errors.New("cannot mutate or remove a historic version")

	// ErrMixedUpdate is returned when an update document mixes $-operators
	// with plain replacement fields.
	ErrMixedUpdate = errors.New("update cannot mix operators with replacement fields")

	// ErrInvalidPath is returned for a malformed dotted path in an update
	// operator.
	ErrInvalidPath = errors.New("invalid document path")
)

// Invariant violations: these indicate the version chain is already
// malformed. They abort the operation and are not safe to retry blindly.
var (
	// ErrNotTemporal is returned when closing a version that carries no
	// transaction_end field at all; the collection is not temporal-shaped.
	ErrNotTemporal = errors.New("version has no transaction_end field")

	// ErrVersionClosed is returned when closing a version whose
	// transaction_end is already concrete.
	ErrVersionClosed = errors.New("version is already closed")

	// ErrOpenPredecessor is returned when advancing from a predecessor whose
	// transaction_end is still open.
	ErrOpenPredecessor = errors.New("predecessor version is still open")
)

// Resource errors: recoverable by the caller.
var (
	// ErrPayloadTooLarge is returned when a document exceeds the maximum
	// record size, including after Close or Advance.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrOrphanedClose is returned when a close succeeded but the successor
	// insert failed after retries; the chain has no current version until a
	// retry or reconciliation restores one.
	ErrOrphanedClose = errors.New("version closed but successor insert failed")

	// ErrScanCancelled is returned when a multi-document mutation is
	// cancelled at a yield point; documents already processed keep their
	// effect.
	ErrScanCancelled = errors.New("multi-document scan cancelled")

	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("request queue is full")

	// ErrPoolStopped is returned when the worker pool is stopped.
	ErrPoolStopped = errors.New("pool is stopped")

	// ErrFrameTooLarge is returned when an IPC frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame size exceeds maximum")
)

// Engine and catalog errors.
var (
	ErrDBNotOpen          = errors.New("database not open")
	ErrDocNotFound        = errors.New("document not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotEmpty = errors.New("collection is not empty")

	// ErrTemporalFlagImmutable is returned when re-creating a collection with
	// a different temporal flag. The flag is fixed for the collection's
	// lifetime.
	ErrTemporalFlagImmutable = errors.New("temporal flag cannot change for an existing collection")

	// ErrUniqueViolation is returned when an insert or successor would
	// duplicate a unique index key. On a shaped temporal index this is
	// implicitly scoped to current versions.
	ErrUniqueViolation = errors.New("unique index violation")

	ErrUnknownOperation = errors.New("unknown operation type")

	// File errors shared by the store journal and catalog.
	ErrFileOpen      = errors.New("failed to open file")
	ErrFileWrite     = errors.New("failed to write file")
	ErrFileRead      = errors.New("failed to read file")
	ErrCorruptRecord = errors.New("corrupt record: invalid length or format")
)
