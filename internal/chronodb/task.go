// Package chronodb implements the database engine: the collection registry,
// the task-based write path and the temporal mutation protocol layered on
// the record store.
//
// Writes are submitted as tasks to the engine's worker pool. Workers pull
// tasks, lock the target collection, execute, unlock and send results.
// Reads do not go through the pool; they scan the store lock-free.
package chronodb

import (
	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// Task is one write operation bound to a collection.
type Task struct {
	Op         types.OperationType
	Collection string
	Doc        map[string]interface{} // Insert payload
	Pattern    map[string]interface{} // Update/Delete match pattern
	Update     map[string]interface{} // Update document
	Multi      bool                   // Update: mutate every match
	JustOne    bool                   // Delete: stop after the first match

	// Admin fields
	Temporal    bool                // CreateCollection: versioning overlay flag
	IndexName   string              // EnsureIndex
	IndexSpec   []temporal.IndexKey // EnsureIndex: key spec before shaping
	Unique      bool                // EnsureIndex
	ExpireAfter int64               // EnsureIndex: retention cutoff in seconds

	ResultCh chan *Result
}

// Result is the outcome of a task execution.
type Result struct {
	Status   types.Status
	Doc      map[string]interface{} // Stored version (Insert)
	Mutation MutationResult         // Update/Delete counters
	Error    error
}

// MutationResult reports what a mutation did. On a partial failure Closed
// can exceed Inserted by one: a version was closed but its successor was
// not stored.
type MutationResult struct {
	Matched  int `json:"matched"`
	Closed   int `json:"closed"`
	Inserted int `json:"inserted"`
}

// NewTask creates a task with a buffered result channel so workers never
// block on delivery.
func NewTask(op types.OperationType, collection string) *Task {
	return &Task{
		Op:         op,
		Collection: collection,
		ResultCh:   make(chan *Result, 1),
	}
}
