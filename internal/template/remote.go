package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Remote is one template record as returned by the provider API.
type Remote map[string]any

// String returns the value at key as a string. Numbers are formatted, anything
// else (missing, null, objects) yields "".
func (r Remote) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int64 returns the numeric value at key. ok is false when the key is absent
// or not a number.
func (r Remote) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Has reports whether key holds a non-empty value.
func (r Remote) Has(key string) bool {
	switch v := r[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

func (r Remote) intOrZero(key string) int {
	n, _ := r.Int64(key)
	return int(n)
}

func (r Remote) int64Ptr(key string) *int64 {
	n, ok := r.Int64(key)
	if !ok {
		return nil
	}
	return &n
}

// ParseContainerMeta decodes the provider's containerMeta, which arrives either
// already decoded or as a JSON string. Empty input yields nil without error.
func ParseContainerMeta(v any) (Blob, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return Blob(m), nil
	case Blob:
		return m, nil
	case string:
		return decodeContainerMeta([]byte(m))
	case []byte:
		return decodeContainerMeta(m)
	default:
		return nil, fmt.Errorf("unexpected containerMeta type %T", v)
	}
}

func decodeContainerMeta(raw []byte) (Blob, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode containerMeta: %w", err)
	}
	return Blob(m), nil
}

// ApplyContainerMeta copies the authoring fields embedded in containerMeta onto t.
func (t *Template) ApplyContainerMeta(cm Blob) {
	if len(cm) == 0 {
		return
	}
	r := Remote(cm)

	if r.Has("data") {
		t.Content = r.String("data")
	}
	if buttons, ok := cm["buttons"].([]any); ok && len(buttons) > 0 {
		t.ensureMaps()
		t.Payload["buttons"] = buttons
	}
	if r.Has("header") {
		t.Header = r.String("header")
	}
	if r.Has("footer") {
		t.Footer = r.String("footer")
	}
	if r.Has("sampleText") {
		t.Example = r.String("sampleText")
	}
	if r.Has("sampleHeader") {
		t.ExampleHeader = r.String("sampleHeader")
	}
	if v, ok := cm["enableSample"].(bool); ok && v {
		t.EnableSample = true
	}
	if v, ok := cm["allowTemplateCategoryChange"].(bool); ok && v {
		t.AllowCategoryChange = true
	}
	if r.Has("correctCategory") {
		t.Category = strings.ToUpper(r.String("correctCategory"))
	}
}

// OverwriteFromRemote replaces every provider-owned field of t with the remote
// record, the way a full sync does. Local-only fields are untouched. A
// malformed containerMeta is reported through the returned error after the
// rest of the record has been applied; ContainerMeta is cleared in that case.
func (t *Template) OverwriteFromRemote(r Remote) error {
	t.ButtonSupported = r.String("buttonSupported")
	t.Category = r.String("category")
	t.CreatedOn = r.int64Ptr("createdOn")
	t.Data = r.String("data")
	t.ElementName = r.String("elementName")
	t.ExternalID = r.String("externalId")
	t.ProviderTemplateID = r.String("id")
	t.InternalCategory = r.String("internalCategory")
	t.InternalType = r.String("internalType")
	t.LanguageCode = r.String("languageCode")
	t.LanguagePolicy = r.String("languagePolicy")
	t.Meta = r.String("meta")
	t.ModifiedOn = r.int64Ptr("modifiedOn")
	t.Namespace = r.String("namespace")
	t.OldCategory = r.String("oldCategory")
	t.Priority = r.intOrZero("priority")
	t.Quality = r.String("quality")
	t.Retry = r.intOrZero("retry")
	t.Stage = r.String("stage")
	t.WabaID = r.String("wabaId")

	if s, ok := ParseStatus(r.String("status")); ok {
		t.Status = s
	}
	if typ, ok := ParseType(r.String("templateType")); ok {
		t.Type = typ
	}

	cm, err := ParseContainerMeta(r["containerMeta"])
	t.ContainerMeta = cm
	if err != nil {
		return err
	}
	t.ApplyContainerMeta(cm)
	return nil
}

// MergeFromRemote applies only the fields present in a submit/update response.
func (t *Template) MergeFromRemote(r Remote) error {
	if r.Has("buttonSupported") {
		t.ButtonSupported = r.String("buttonSupported")
	}
	if r.Has("id") {
		t.ProviderTemplateID = r.String("id")
	}
	if r.Has("internalCategory") {
		t.InternalCategory = r.String("internalCategory")
	}
	if r.Has("internalType") {
		t.InternalType = r.String("internalType")
	}
	if r.Has("externalId") {
		t.ExternalID = r.String("externalId")
	}
	if r.Has("oldCategory") {
		t.OldCategory = r.String("oldCategory")
	}
	if s, ok := ParseStatus(r.String("status")); ok {
		t.Status = s
	}
	if r.Has("createdOn") {
		t.CreatedOn = r.int64Ptr("createdOn")
	}
	if r.Has("modifiedOn") {
		t.ModifiedOn = r.int64Ptr("modifiedOn")
	}
	if r.Has("data") {
		t.Data = r.String("data")
	}
	if r.Has("elementName") {
		t.ElementName = r.String("elementName")
	}
	if r.Has("languagePolicy") {
		t.LanguagePolicy = r.String("languagePolicy")
	}
	if r.Has("meta") {
		t.Meta = r.String("meta")
	}
	if r.Has("namespace") {
		t.Namespace = r.String("namespace")
	}
	if r.Has("priority") {
		t.Priority = r.intOrZero("priority")
	}
	if r.Has("quality") {
		t.Quality = r.String("quality")
	}
	if r.Has("retry") {
		t.Retry = r.intOrZero("retry")
	}
	if r.Has("stage") {
		t.Stage = r.String("stage")
	}
	if r.Has("wabaId") {
		t.WabaID = r.String("wabaId")
	}

	if !r.Has("containerMeta") {
		return nil
	}
	cm, err := ParseContainerMeta(r["containerMeta"])
	if err != nil {
		return err
	}
	t.ContainerMeta = cm
	t.ApplyContainerMeta(cm)
	return nil
}
