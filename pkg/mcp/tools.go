package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nodefold/nodefold/pkg/schema"
)

// handleSpawn adds a node to the live flow.
func (s *FoldServer) handleSpawn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required"), nil
	}
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError("label is required"), nil
	}
	parentID := req.GetString("parent_id", "")

	node := s.engine.Spawn(ctx, schema.NodeKind(kind), label, parentID)
	return marshalResult(node)
}

// handleCollapse starts a collapse sweep over every active node.
func (s *FoldServer) handleCollapse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	batchID, count := s.engine.CollapseAll(ctx)
	return marshalResult(map[string]any{
		"batch_id": batchID,
		"count":    count,
	})
}

// handleCancel aborts every in-flight collapse batch.
func (s *FoldServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	restored := s.engine.CancelBatch(ctx)
	return marshalResult(map[string]any{"restored": restored})
}

// handleStatus returns live scene counters.
func (s *FoldServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.engine.Snapshot())
}

// handleHistory lists the archive, optionally narrowed and reshaped.
func (s *FoldServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := s.engine.History()

	if kind := req.GetString("kind", ""); kind != "" {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Kind == schema.NodeKind(kind) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if limit := req.GetInt("limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}

	filter := req.GetString("filter", "")
	if filter == "" {
		return marshalResult(map[string]any{"history": entries})
	}

	result, err := s.query.Apply(ctx, filter, entries)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"result": result})
}

// handleScene validates a scene document and replays it into the engine.
func (s *FoldServer) handleScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("scene loading is not configured"), nil
	}

	sceneRaw := mcp.ParseStringMap(req, "scene", nil)
	if sceneRaw == nil {
		return mcp.NewToolResultError("scene is required"), nil
	}

	raw, err := json.Marshal(sceneRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scene: %v", err)), nil
	}

	scene, err := s.validator.ParseScene(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene rejected: %v", err)), nil
	}

	ids, err := s.validator.Replay(ctx, s.engine, scene)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene replay failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"name": scene.Name,
		"ids":  ids,
	})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
