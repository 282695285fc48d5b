// Package client is the Go client for the chronodb daemon. It speaks the
// length-prefixed frame protocol over a unix socket; requests on one client
// are serialized, so share a client or open several.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/kartikbazzad/chronodb/internal/ipc"
	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

var (
	ErrConnectionFailed = errors.New("failed to connect to server")
	ErrInvalidResponse  = errors.New("invalid response from server")
)

// MutationResult mirrors the engine's mutation counters.
type MutationResult struct {
	Matched  int `json:"matched"`
	Closed   int `json:"closed"`
	Inserted int `json:"inserted"`
}

// IndexKey re-exports the index key spec component.
type IndexKey = temporal.IndexKey

type Client struct {
	socketPath string
	conn       net.Conn
	mu         sync.Mutex
	requestID  uint64
}

func New(socketPath string) *Client {
	return &Client{socketPath: socketPath, requestID: 1}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return ErrConnectionFailed
	}
	c.conn = conn
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// roundTrip sends one request frame and waits for its response.
func (c *Client) roundTrip(command uint8, collection string, body interface{}) ([]byte, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reqID := c.requestID
	c.requestID++

	frame := &ipc.RequestFrame{
		RequestID:  reqID,
		Command:    command,
		Collection: collection,
		Payload:    payload,
	}
	data, err := ipc.EncodeRequest(frame)
	if err != nil {
		return nil, err
	}
	if err := ipc.WriteFrame(c.conn, data); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, err
	}

	respData, err := ipc.ReadFrame(c.conn)
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, err
	}
	resp, err := ipc.DecodeResponse(respData)
	if err != nil {
		return nil, err
	}
	if resp.RequestID != reqID {
		return nil, ErrInvalidResponse
	}
	if resp.Status != types.StatusOK {
		return resp.Data, responseError(resp.Data)
	}
	return resp.Data, nil
}

func responseError(data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return errors.New(body.Error)
	}
	return fmt.Errorf("%w: %s", ErrInvalidResponse, data)
}

// CreateCollection creates a collection. temporal fixes the versioning
// overlay flag for the collection's lifetime.
func (c *Client) CreateCollection(name string, temporal bool) error {
	_, err := c.roundTrip(ipc.CmdCreateCollection, name, map[string]bool{"temporal": temporal})
	return err
}

func (c *Client) DropCollection(name string) error {
	_, err := c.roundTrip(ipc.CmdDropCollection, name, nil)
	return err
}

// Insert stores a document and returns the stored form; in a temporal
// collection that is the first open version with the composite identifier.
func (c *Client) Insert(collection string, doc map[string]interface{}) (map[string]interface{}, error) {
	data, err := c.roundTrip(ipc.CmdInsert, collection, map[string]interface{}{"doc": doc})
	if err != nil {
		return nil, err
	}
	var body struct {
		Doc map[string]interface{} `json:"doc"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, ErrInvalidResponse
	}
	return body.Doc, nil
}

func (c *Client) Update(collection string, pattern, update map[string]interface{}, multi bool) (MutationResult, error) {
	var res MutationResult
	data, err := c.roundTrip(ipc.CmdUpdate, collection, map[string]interface{}{
		"pattern": pattern,
		"update":  update,
		"multi":   multi,
	})
	if len(data) > 0 {
		// Counters are present even on a partial failure.
		json.Unmarshal(data, &res)
	}
	return res, err
}

func (c *Client) Delete(collection string, pattern map[string]interface{}, justOne bool) (MutationResult, error) {
	var res MutationResult
	data, err := c.roundTrip(ipc.CmdDelete, collection, map[string]interface{}{
		"pattern":  pattern,
		"just_one": justOne,
	})
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, ErrInvalidResponse
	}
	return res, nil
}

// Find evaluates a filter. The reserved "transaction" field in the filter
// selects the time view on temporal collections.
func (c *Client) Find(collection string, filter, sort map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	data, err := c.roundTrip(ipc.CmdFind, collection, map[string]interface{}{
		"filter": filter,
		"sort":   sort,
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}
	var body struct {
		Docs []map[string]interface{} `json:"docs"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, ErrInvalidResponse
	}
	return body.Docs, nil
}

func (c *Client) Count(collection string, filter map[string]interface{}) (int, error) {
	data, err := c.roundTrip(ipc.CmdCount, collection, map[string]interface{}{"filter": filter})
	if err != nil {
		return 0, err
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, ErrInvalidResponse
	}
	return body.Count, nil
}

// EnsureIndex defines an index. On temporal collections the server rewrites
// the key spec so the interval-end field is indexable; expireAfter seconds > 0
// enables the retention sweep for the collection.
func (c *Client) EnsureIndex(collection, name string, spec []IndexKey, unique bool, expireAfter int64) error {
	_, err := c.roundTrip(ipc.CmdEnsureIndex, collection, map[string]interface{}{
		"name":         name,
		"spec":         spec,
		"unique":       unique,
		"expire_after": expireAfter,
	})
	return err
}

func (c *Client) ListCollections() ([]types.CollectionMetadata, error) {
	data, err := c.roundTrip(ipc.CmdListCollections, "", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Collections []types.CollectionMetadata `json:"collections"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, ErrInvalidResponse
	}
	return body.Collections, nil
}

func (c *Client) Stats() (types.Stats, error) {
	var stats types.Stats
	data, err := c.roundTrip(ipc.CmdStats, "", nil)
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, ErrInvalidResponse
	}
	return stats, nil
}
