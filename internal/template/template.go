// Package template holds the WhatsApp template entity, its closed enums and the
// content fingerprint used to detect drift against the provider's copy.
package template

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Blob is a semi-structured JSON object. Provider-returned metadata has no fixed
// schema, so readers must type-assert defensively.
type Blob map[string]any

// Status is the local mirror of the provider-side review state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	StatusPaused   Status = "paused"
	StatusDeleted  Status = "deleted"
	StatusDisabled Status = "disabled"
	StatusInAppeal Status = "in_appeal"
)

var validStatuses = map[Status]bool{
	StatusDraft:    true,
	StatusPending:  true,
	StatusApproved: true,
	StatusRejected: true,
	StatusFailed:   true,
	StatusPaused:   true,
	StatusDeleted:  true,
	StatusDisabled: true,
	StatusInAppeal: true,
}

// ParseStatus normalizes a provider status string ("APPROVED", " approved ")
// and reports whether it is one of the known statuses.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, validStatuses[s]
}

// Type is the template's message format.
type Type string

const (
	TypeText     Type = "TEXT"
	TypeImage    Type = "IMAGE"
	TypeVideo    Type = "VIDEO"
	TypeDocument Type = "DOCUMENT"
	TypeCarousel Type = "CAROUSEL"
	TypeCatalog  Type = "CATALOG"
)

// ParseType accepts any casing of a known template type.
func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeDocument, TypeCarousel, TypeCatalog:
		return t, true
	default:
		return t, false
	}
}

// IsMedia reports whether the type carries a single header media attachment.
func (t Type) IsMedia() bool {
	return t == TypeImage || t == TypeVideo || t == TypeDocument
}

// DeleteState is the soft-delete marker used while a provider-side deletion is in flight.
type DeleteState string

const (
	DeleteNone       DeleteState = "none"
	DeleteProcessing DeleteState = "processing"
	DeleteDeleted    DeleteState = "deleted"
)

// Template is a tenant's WhatsApp message template and its mirrored provider state.
type Template struct {
	ID           uuid.UUID `json:"id"`
	OrgID        string    `json:"org_id"`
	AppID        string    `json:"app_id"`
	ElementName  string    `json:"element_name"`
	LanguageCode string    `json:"language_code"`
	Type         Type      `json:"template_type"`
	Category     string    `json:"category"`
	OldCategory  string    `json:"old_category,omitempty"`
	Content      string    `json:"content"`

	// Local authoring fields sent on submission.
	MediaURL            string `json:"media_url,omitempty"`
	Vertical            string `json:"vertical,omitempty"`
	Footer              string `json:"footer,omitempty"`
	Header              string `json:"header,omitempty"`
	Example             string `json:"example,omitempty"`
	ExampleHeader       string `json:"example_header,omitempty"`
	AllowCategoryChange bool   `json:"allow_category_change"`
	EnableSample        bool   `json:"enable_sample"`
	ExampleMedia        string `json:"example_media,omitempty"`
	Payload             Blob   `json:"payload,omitempty"`
	ProviderMetadata    Blob   `json:"provider_metadata,omitempty"`

	// Provider-owned fields.
	Status             Status `json:"status"`
	ProviderTemplateID string `json:"provider_template_id,omitempty"`
	ContainerMeta      Blob   `json:"container_meta,omitempty"`
	ButtonSupported    string `json:"button_supported,omitempty"`
	CreatedOn          *int64 `json:"created_on,omitempty"`
	ModifiedOn         *int64 `json:"modified_on,omitempty"`
	Data               string `json:"data,omitempty"`
	ExternalID         string `json:"external_id,omitempty"`
	InternalCategory   string `json:"internal_category,omitempty"`
	InternalType       string `json:"internal_type,omitempty"`
	LanguagePolicy     string `json:"language_policy,omitempty"`
	Meta               string `json:"meta,omitempty"`
	Namespace          string `json:"namespace,omitempty"`
	Priority           int    `json:"priority"`
	Quality            string `json:"quality,omitempty"`
	Retry              int    `json:"retry"`
	Stage              string `json:"stage,omitempty"`
	WabaID             string `json:"waba_id,omitempty"`

	// Bookkeeping.
	ErrorMeta   Blob        `json:"error_meta,omitempty"`
	WebhookMeta Blob        `json:"webhook_meta,omitempty"`
	DeleteState DeleteState `json:"is_deleted"`
	Hash        string      `json:"hash"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// New returns a draft template with the bookkeeping maps initialised.
func New(orgID, appID, elementName, languageCode string, typ Type) *Template {
	t := &Template{
		ID:           uuid.New(),
		OrgID:        orgID,
		AppID:        appID,
		ElementName:  elementName,
		LanguageCode: languageCode,
		Type:         typ,
		Category:     "MARKETING",
		Status:       StatusDraft,
		DeleteState:  DeleteNone,
	}
	t.ensureMaps()
	return t
}

// MediaHandle returns the provider media handle recorded for this template, if any.
func (t *Template) MediaHandle() string {
	if t.ProviderMetadata == nil {
		return ""
	}
	h, _ := t.ProviderMetadata["media_id"].(string)
	return h
}

// SetMediaHandle records an uploaded media handle so later submissions can reuse it.
func (t *Template) SetMediaHandle(handle string) {
	t.ensureMaps()
	t.ProviderMetadata["media_id"] = handle
}

func (t *Template) ensureMaps() {
	if t.Payload == nil {
		t.Payload = Blob{}
	}
	if t.ProviderMetadata == nil {
		t.ProviderMetadata = Blob{}
	}
	if t.ErrorMeta == nil {
		t.ErrorMeta = Blob{}
	}
	if t.WebhookMeta == nil {
		t.WebhookMeta = Blob{}
	}
}

// Clone returns a deep copy of t. Nested blob values are copied too, so the
// clone can be mutated without touching the original.
func (t *Template) Clone() *Template {
	c := *t
	c.Payload = cloneBlob(t.Payload)
	c.ProviderMetadata = cloneBlob(t.ProviderMetadata)
	c.ContainerMeta = cloneBlob(t.ContainerMeta)
	c.ErrorMeta = cloneBlob(t.ErrorMeta)
	c.WebhookMeta = cloneBlob(t.WebhookMeta)
	if t.CreatedOn != nil {
		v := *t.CreatedOn
		c.CreatedOn = &v
	}
	if t.ModifiedOn != nil {
		v := *t.ModifiedOn
		c.ModifiedOn = &v
	}
	return &c
}

func cloneBlob(b Blob) Blob {
	if b == nil {
		return nil
	}
	return Blob(cloneValue(map[string]any(b)).(map[string]any))
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	case Blob:
		return cloneBlob(x)
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cloneValue(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, val := range x {
			out[i] = cloneValue(val).(map[string]any)
		}
		return out
	default:
		return v
	}
}
