package ipc

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/kartikbazzad/chronodb/internal/chronodb"
	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/metrics"
	"github.com/kartikbazzad/chronodb/internal/temporal"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// Handler maps decoded request frames onto engine calls.
type Handler struct {
	db     *chronodb.DB
	logger *logger.Logger
}

func NewHandler(db *chronodb.DB, log *logger.Logger) *Handler {
	return &Handler{db: db, logger: log}
}

// Request bodies. One struct per command keeps the wire shapes explicit.
type insertBody struct {
	Doc map[string]interface{} `json:"doc"`
}

type updateBody struct {
	Pattern map[string]interface{} `json:"pattern"`
	Update  map[string]interface{} `json:"update"`
	Multi   bool                   `json:"multi"`
}

type deleteBody struct {
	Pattern map[string]interface{} `json:"pattern"`
	JustOne bool                   `json:"just_one"`
}

type findBody struct {
	Filter map[string]interface{} `json:"filter"`
	Sort   map[string]interface{} `json:"sort,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
}

type createCollectionBody struct {
	Temporal bool `json:"temporal"`
}

type ensureIndexBody struct {
	Name        string              `json:"name"`
	Spec        []temporal.IndexKey `json:"spec"`
	Unique      bool                `json:"unique"`
	ExpireAfter int64               `json:"expire_after,omitempty"`
}

func validateJSONPayload(payload []byte) error {
	if len(payload) == 0 {
		return errors.ErrInvalidJSON
	}
	if !utf8.Valid(payload) {
		return errors.ErrInvalidJSON
	}
	return nil
}

// Handle executes one request and builds its response frame.
func (h *Handler) Handle(frame *RequestFrame) *ResponseFrame {
	response := &ResponseFrame{RequestID: frame.RequestID}

	data, status, err := h.dispatch(frame)
	if err != nil {
		response.Status = status
		if response.Status == types.StatusOK {
			response.Status = types.StatusError
		}
		// Some commands attach a body to errors (mutation counters on a
		// partial failure); default to the bare error otherwise.
		if data == nil {
			data, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		response.Data = data
		metrics.RecordIPCRequest(CommandName(frame.Command), "error")
		return response
	}

	response.Status = types.StatusOK
	response.Data = data
	metrics.RecordIPCRequest(CommandName(frame.Command), "ok")
	return response
}

func (h *Handler) dispatch(frame *RequestFrame) ([]byte, types.Status, error) {
	switch frame.Command {
	case CmdInsert:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body insertBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		doc, err := h.db.Insert(frame.Collection, body.Doc)
		if err != nil {
			return nil, types.StatusError, err
		}
		data, _ := json.Marshal(map[string]interface{}{"doc": doc})
		return data, types.StatusOK, nil

	case CmdUpdate:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body updateBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		res, err := h.db.Update(frame.Collection, body.Pattern, body.Update, body.Multi)
		if err != nil {
			data, _ := json.Marshal(map[string]interface{}{
				"error":    err.Error(),
				"matched":  res.Matched,
				"closed":   res.Closed,
				"inserted": res.Inserted,
			})
			return data, types.StatusError, err
		}
		data, _ := json.Marshal(res)
		return data, types.StatusOK, nil

	case CmdDelete:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body deleteBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		res, err := h.db.Delete(frame.Collection, body.Pattern, body.JustOne)
		if err != nil {
			return nil, types.StatusError, err
		}
		data, _ := json.Marshal(res)
		return data, types.StatusOK, nil

	case CmdFind:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body findBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		docs, err := h.db.Find(frame.Collection, body.Filter, body.Sort, body.Limit)
		if err != nil {
			return nil, types.StatusError, err
		}
		if docs == nil {
			docs = []map[string]interface{}{}
		}
		data, _ := json.Marshal(map[string]interface{}{"docs": docs})
		return data, types.StatusOK, nil

	case CmdCount:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body findBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		n, err := h.db.Count(frame.Collection, body.Filter)
		if err != nil {
			return nil, types.StatusError, err
		}
		data, _ := json.Marshal(map[string]int{"count": n})
		return data, types.StatusOK, nil

	case CmdCreateCollection:
		var body createCollectionBody
		if len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, &body); err != nil {
				return nil, types.StatusInvalid, errors.ErrInvalidJSON
			}
		}
		if err := h.db.CreateCollection(frame.Collection, body.Temporal); err != nil {
			return nil, types.StatusError, err
		}
		return []byte(`{}`), types.StatusOK, nil

	case CmdDropCollection:
		if err := h.db.DropCollection(frame.Collection); err != nil {
			return nil, types.StatusError, err
		}
		return []byte(`{}`), types.StatusOK, nil

	case CmdEnsureIndex:
		if err := validateJSONPayload(frame.Payload); err != nil {
			return nil, types.StatusInvalid, err
		}
		var body ensureIndexBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			return nil, types.StatusInvalid, errors.ErrInvalidJSON
		}
		if err := h.db.EnsureIndex(frame.Collection, body.Name, body.Spec, body.Unique, body.ExpireAfter); err != nil {
			return nil, types.StatusError, err
		}
		return []byte(`{}`), types.StatusOK, nil

	case CmdListCollections:
		cols := h.db.ListCollections()
		data, _ := json.Marshal(map[string]interface{}{"collections": cols})
		return data, types.StatusOK, nil

	case CmdStats:
		data, _ := json.Marshal(h.db.Stats())
		return data, types.StatusOK, nil

	default:
		return nil, types.StatusInvalid, errors.ErrUnknownOperation
	}
}
