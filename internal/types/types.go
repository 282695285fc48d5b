package types

import "time"

type OperationType byte

const (
	OpInsert OperationType = iota + 1
	OpUpdate
	OpDelete
	OpFind
	OpCount
	OpCreateCollection
	OpDropCollection
	OpEnsureIndex
	OpListCollections
	OpStats
)

func (op OperationType) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpFind:
		return "find"
	case OpCount:
		return "count"
	case OpCreateCollection:
		return "create_collection"
	case OpDropCollection:
		return "drop_collection"
	case OpEnsureIndex:
		return "ensure_index"
	case OpListCollections:
		return "list_collections"
	case OpStats:
		return "stats"
	default:
		return "unknown"
	}
}

type Status byte

const (
	StatusOK Status = iota
	StatusError
	StatusNotFound
	StatusInvalid
	StatusConflict
)

// CollectionMetadata describes a collection. Temporal is immutable for the
// lifetime of the collection: a collection created temporal stays temporal.
type CollectionMetadata struct {
	Name      string    `json:"name"`
	Temporal  bool      `json:"temporal"`
	CreatedAt time.Time `json:"created_at"`
	DocCount  uint64    `json:"doc_count"`
}

// IndexMetadata is a persisted index definition. Spec holds the shaped key
// spec as JSON; ExpireAfter > 0 marks the index field as a retention cutoff
// consumed by the purge sweep.
type IndexMetadata struct {
	Collection  string `json:"collection"`
	Name        string `json:"name"`
	Spec        string `json:"spec"`
	Unique      bool   `json:"unique"`
	ExpireAfter int64  `json:"expire_after,omitempty"`
}

type Stats struct {
	Collections   int    `json:"collections"`
	TotalTxns     uint64 `json:"total_txns"`
	TotalRequests uint64 `json:"total_requests"`
	Uptime        string `json:"uptime"`
}
