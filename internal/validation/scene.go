// Package validation checks scene definitions before they are replayed
// into a live engine. Scenes are declarative JSON documents listing nodes
// to spawn, with local refs wiring up parent/child relationships.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nodefold/nodefold/pkg/schema"
)

// SceneNode is one declared node in a scene. Ref is a scene-local handle;
// Parent, when set, must name the ref of an earlier node in the list.
type SceneNode struct {
	Ref    string          `json:"ref"`
	Kind   schema.NodeKind `json:"kind"`
	Label  string          `json:"label"`
	Parent string          `json:"parent,omitempty"`
}

// Scene is a declarative batch of nodes to spawn in order.
type Scene struct {
	Name  string      `json:"name,omitempty"`
	Nodes []SceneNode `json:"nodes"`
}

// Spawner is the slice of the engine a scene replay needs. Declared here
// so this package does not import the engine.
type Spawner interface {
	Spawn(ctx context.Context, kind schema.NodeKind, label, parentID string) schema.Node
}

// sceneSchemaJSON is the JSON Schema for scene documents.
// Embedded as a constant to avoid filesystem dependencies.
const sceneSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodefold.dev/schemas/scene.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["ref", "kind", "label"],
      "properties": {
        "ref": {
          "type": "string",
          "minLength": 1
        },
        "kind": {
          "type": "string",
          "enum": ["understanding", "worker", "helper", "expert"]
        },
        "label": {
          "type": "string",
          "minLength": 1
        },
        "parent": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// SceneValidator validates scene documents against the embedded JSON Schema
// plus the structural rules the schema cannot express. Safe for concurrent use.
type SceneValidator struct {
	sceneSchema *jsonschema.Schema
}

// NewSceneValidator compiles the embedded scene schema.
func NewSceneValidator() (*SceneValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(sceneSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal scene schema: %w", err)
	}
	if err := c.AddResource("https://nodefold.dev/schemas/scene.json", doc); err != nil {
		return nil, fmt.Errorf("add scene schema resource: %w", err)
	}

	compiled, err := c.Compile("https://nodefold.dev/schemas/scene.json")
	if err != nil {
		return nil, fmt.Errorf("compile scene schema: %w", err)
	}

	return &SceneValidator{sceneSchema: compiled}, nil
}

// ParseScene decodes and validates a raw scene document.
func (v *SceneValidator) ParseScene(raw []byte) (*Scene, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene is not valid JSON").WithCause(err)
	}

	if err := v.sceneSchema.Validate(doc); err != nil {
		return nil, toFoldError(err)
	}

	var scene Scene
	if err := json.Unmarshal(raw, &scene); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode scene").WithCause(err)
	}

	if err := v.checkRefs(&scene); err != nil {
		return nil, err
	}
	return &scene, nil
}

// checkRefs enforces the rules JSON Schema cannot: unique refs, and parents
// pointing at an earlier node in the list (spawn order is list order).
func (v *SceneValidator) checkRefs(scene *Scene) error {
	seen := make(map[string]struct{}, len(scene.Nodes))
	for _, n := range scene.Nodes {
		if _, dup := seen[n.Ref]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ref %q", n.Ref)
		}
		if n.Parent != "" {
			if n.Parent == n.Ref {
				return schema.NewErrorf(schema.ErrCodeValidation, "node %q is its own parent", n.Ref)
			}
			if _, ok := seen[n.Parent]; !ok {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"node %q references parent %q which is not declared earlier", n.Ref, n.Parent)
			}
		}
		seen[n.Ref] = struct{}{}
	}
	return nil
}

// Replay spawns every node in the scene, in list order, resolving scene refs
// to the ids the engine assigns. Returns the ref-to-id mapping.
func (v *SceneValidator) Replay(ctx context.Context, sp Spawner, scene *Scene) (map[string]string, error) {
	if scene == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene is nil")
	}
	if err := v.checkRefs(scene); err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(scene.Nodes))
	for _, n := range scene.Nodes {
		parentID := ""
		if n.Parent != "" {
			parentID = ids[n.Parent]
		}
		node := sp.Spawn(ctx, n.Kind, n.Label, parentID)
		ids[n.Ref] = node.ID
	}
	return ids, nil
}

// toFoldError converts a jsonschema.ValidationError into a FoldError with
// one message per leaf violation.
func toFoldError(err error) *schema.FoldError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("scene validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
