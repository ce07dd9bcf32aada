package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nodefold/nodefold/internal/store"
	"github.com/nodefold/nodefold/pkg/schema"
)

// handleNodes returns the live scene: nodes plus connection geometry.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":       s.deps.Engine.LiveNodes(),
		"connections": s.deps.Engine.Connections(),
	})
}

// handleStats returns engine counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

// handleHistory returns archived entries in completion order. An optional
// `filter` query param applies a jq filter to the entry list; `kind` and
// `limit` narrow the raw listing.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Engine.History()

	if kind := r.URL.Query().Get("kind"); kind != "" {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Kind == schema.NodeKind(kind) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}

	filter := r.URL.Query().Get("filter")
	if filter == "" {
		writeJSON(w, http.StatusOK, map[string]any{"history": entries})
		return
	}

	result, err := s.deps.Query.Apply(r.Context(), filter, entries)
	if err != nil {
		writeFoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleEvents lists persisted events from the journal store.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "event persistence is not configured")
		return
	}

	filter := store.EventFilter{
		BatchID:   r.URL.Query().Get("batch_id"),
		EventType: r.URL.Query().Get("event_type"),
		Since:     int64(queryInt(r, "since", 0)),
		Limit:     queryInt(r, "limit", 100),
	}

	events, err := s.deps.Store.ListEvents(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list events: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleSpawn creates a node.
func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind     string `json:"kind"`
		Label    string `json:"label"`
		ParentID string `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	if body.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}

	node := s.deps.Engine.Spawn(r.Context(), schema.NodeKind(body.Kind), body.Label, body.ParentID)
	writeJSON(w, http.StatusCreated, node)
}

// handleCollapse starts a collapse sweep over every active node.
func (s *Server) handleCollapse(w http.ResponseWriter, r *http.Request) {
	batchID, count := s.deps.Engine.CollapseAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"count":    count,
	})
}

// handleCancel aborts every in-flight collapse batch.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	restored := s.deps.Engine.CancelBatch(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"restored": restored})
}

// handleScene validates a scene document and replays it into the engine.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if s.deps.Validator == nil {
		writeError(w, http.StatusServiceUnavailable, "scene loading is not configured")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	scene, err := s.deps.Validator.ParseScene(raw)
	if err != nil {
		writeFoldError(w, err)
		return
	}

	ids, err := s.deps.Validator.Replay(r.Context(), s.deps.Engine, scene)
	if err != nil {
		writeFoldError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"name": scene.Name,
		"ids":  ids,
	})
}

// writeFoldError maps a FoldError to an HTTP status, falling back to 500.
func writeFoldError(w http.ResponseWriter, err error) {
	var ferr *schema.FoldError
	if !errors.As(err, &ferr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ferr.Code {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	}
	writeError(w, status, ferr.Message)
}
