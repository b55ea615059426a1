package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lalithlochan/templar/internal/template"
)

// Button types accepted by the provider.
const (
	ButtonQuickReply  = "QUICK_REPLY"
	ButtonURL         = "URL"
	ButtonPhoneNumber = "PHONE_NUMBER"
)

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// normalizeButtons keeps only the fields the provider accepts for each
// button type. Unknown types are rejected.
func normalizeButtons(raw any) ([]map[string]any, error) {
	items, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("buttons must be a list, got %T", raw)
	}

	buttons := make([]map[string]any, 0, len(items))
	for i, item := range items {
		b, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("button %d is not an object", i)
		}
		typ := stringField(b, "type")
		switch typ {
		case ButtonQuickReply:
			buttons = append(buttons, map[string]any{
				"type": typ,
				"text": stringField(b, "text"),
			})
		case ButtonURL:
			buttons = append(buttons, map[string]any{
				"type":        typ,
				"text":        stringField(b, "text"),
				"url":         stringField(b, "url"),
				"buttonValue": stringField(b, "buttonValue"),
				"suffix":      stringField(b, "suffix"),
			})
		case ButtonPhoneNumber:
			buttons = append(buttons, map[string]any{
				"type":         typ,
				"text":         stringField(b, "text"),
				"phone_number": stringField(b, "phone_number"),
			})
		default:
			return nil, fmt.Errorf("button %d: unsupported type %q", i, typ)
		}
	}
	return buttons, nil
}

// encodeForm flattens values into form fields: strings as is, lists and
// objects as JSON, everything else through fmt. nil values are dropped.
func encodeForm(fields map[string]any) (url.Values, error) {
	form := url.Values{}
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			form.Set(k, val)
		case bool:
			form.Set(k, strconv.FormatBool(val))
		case map[string]any, []any, []map[string]any:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", k, err)
			}
			form.Set(k, string(b))
		default:
			form.Set(k, fmt.Sprint(val))
		}
	}
	return form, nil
}

// baseFields are the submission fields shared by every template type.
func baseFields(t *template.Template, mediaHandle string) (map[string]any, error) {
	fields := map[string]any{
		"elementName":                 t.ElementName,
		"languageCode":                t.LanguageCode,
		"content":                     t.Content,
		"category":                    t.Category,
		"templateType":                string(t.Type),
		"vertical":                    t.Vertical,
		"footer":                      t.Footer,
		"allowTemplateCategoryChange": t.AllowCategoryChange,
		"example":                     t.Example,
		"exampleHeader":               t.ExampleHeader,
		"header":                      t.Header,
		"enableSample":                t.EnableSample,
	}
	if t.EnableSample && mediaHandle != "" {
		fields["exampleMedia"] = mediaHandle
	}

	buttons, err := normalizeButtons(t.Payload["buttons"])
	if err != nil {
		return nil, err
	}
	if len(buttons) > 0 {
		fields["buttons"] = buttons
	}
	return fields, nil
}

// card is one carousel card before its media is resolved.
type card struct {
	HeaderType string
	Body       string
	SampleText string
	MediaURL   string
	Buttons    []map[string]any
}

func parseCards(raw any) ([]card, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("carousel template needs at least one card")
	}

	cards := make([]card, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("card %d is not an object", i)
		}
		buttons, err := normalizeButtons(m["buttons"])
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		cards = append(cards, card{
			HeaderType: stringField(m, "headerType"),
			Body:       stringField(m, "body"),
			SampleText: stringField(m, "sampleText"),
			MediaURL:   stringField(m, "mediaUrl"),
			Buttons:    buttons,
		})
	}
	return cards, nil
}

func (c card) wire(mediaHandle string) map[string]any {
	out := map[string]any{
		"headerType": c.HeaderType,
		"body":       c.Body,
		"sampleText": c.SampleText,
	}
	if mediaHandle != "" {
		out["exampleMedia"] = mediaHandle
	}
	if len(c.Buttons) > 0 {
		out["buttons"] = c.Buttons
	}
	return out
}
