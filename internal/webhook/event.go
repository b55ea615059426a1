// Package webhook parses provider template webhooks and applies them to the
// stored templates.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lalithlochan/templar/internal/template"
)

// EnvelopeTemplateEvent is the only envelope type the reconciler handles.
const EnvelopeTemplateEvent = "template-event"

// Kind is the template event sub-type.
type Kind string

const (
	KindStatus   Kind = "status-update"
	KindCategory Kind = "category-update"
	KindQuality  Kind = "quality-update"
)

// Event is one webhook delivery. Payload is kept semi-structured because the
// provider adds fields without notice.
type Event struct {
	Type    string          `json:"type"`
	Payload template.Remote `json:"payload"`
}

// IsTemplateEvent reports whether the envelope carries a template event.
func (e *Event) IsTemplateEvent() bool {
	return e.Type == EnvelopeTemplateEvent
}

// Kind returns the event sub-type. A missing or null type is a legacy status
// event. ok is false for sub-types the reconciler does not know.
func (e *Event) Kind() (Kind, bool) {
	raw := strings.TrimSpace(e.Payload.String("type"))
	if raw == "" {
		return KindStatus, true
	}
	switch k := Kind(raw); k {
	case KindStatus, KindCategory, KindQuality:
		return k, true
	default:
		return k, false
	}
}

const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"payload": {
			"type": "object",
			"properties": {
				"id": {"type": ["string", "null"]},
				"elementName": {"type": ["string", "null"]},
				"languageCode": {"type": ["string", "null"]},
				"type": {"type": ["string", "null"]},
				"status": {"type": ["string", "null"]},
				"description": {"type": ["string", "null"]},
				"quality": {"type": ["string", "null"]},
				"category": {
					"type": ["object", "null"],
					"properties": {
						"new": {"type": ["string", "null"]},
						"old": {"type": ["string", "null"]}
					}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(envelopeSchema)

// Validate checks raw against the webhook envelope schema.
func Validate(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("webhook validation failed: %v", errs)
	}
	return nil
}

// Parse validates and decodes a delivery. Template events must carry a payload.
func Parse(raw []byte) (*Event, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.IsTemplateEvent() && ev.Payload == nil {
		return nil, fmt.Errorf("webhook validation failed: template-event without payload")
	}
	return &ev, nil
}
