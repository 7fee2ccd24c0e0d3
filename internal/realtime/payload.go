// ABOUTME: Notification payload shape and optional JSON Schema validation
// ABOUTME: Payloads are tagged by type and may carry a full entity snapshot

package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload is one notification delivered on the stream. Type tags the
// notification; FullEntity optionally carries a complete entity snapshot
// for direct cache insertion.
type Payload struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	EntityRefs map[string]string `json:"entityRefs,omitempty"`
	FullEntity json.RawMessage   `json:"fullEntity,omitempty"`
}

// entityID extracts the id field from the full entity snapshot, or empty.
func (p *Payload) entityID() string {
	if len(p.FullEntity) == 0 {
		return ""
	}
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.FullEntity, &ref); err != nil {
		return ""
	}
	return ref.ID
}

// payloadSchema is the envelope contract for stream payloads. Entity
// contents are deliberately unconstrained; only the envelope is checked.
const payloadSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"type": {"type": "string"},
		"entityRefs": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"fullEntity": {"type": "object"}
	},
	"required": ["type"]
}`

// compilePayloadSchema compiles the embedded envelope schema.
func compilePayloadSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchema))
	if err != nil {
		return nil, fmt.Errorf("decoding payload schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", doc); err != nil {
		return nil, fmt.Errorf("adding payload schema: %w", err)
	}

	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compiling payload schema: %w", err)
	}
	return schema, nil
}

// validatePayload checks raw against the envelope schema.
func validatePayload(schema *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}
