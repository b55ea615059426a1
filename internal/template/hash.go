package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprint lists the provider-relevant fields that participate in the hash.
// Timestamps (createdOn, modifiedOn, created_at, updated_at) and local-only
// fields are left out on purpose: they move without the template changing.
func (t *Template) fingerprint() map[string]any {
	var containerMeta any
	if len(t.ContainerMeta) > 0 {
		containerMeta = t.ContainerMeta
	}

	return map[string]any{
		"appId":            t.AppID,
		"buttonSupported":  t.ButtonSupported,
		"category":         t.Category,
		"containerMeta":    containerMeta,
		"data":             t.Data,
		"elementName":      t.ElementName,
		"externalId":       t.ExternalID,
		"id":               t.ProviderTemplateID,
		"internalCategory": t.InternalCategory,
		"internalType":     t.InternalType,
		"languageCode":     t.LanguageCode,
		"languagePolicy":   t.LanguagePolicy,
		"meta":             t.Meta,
		"namespace":        t.Namespace,
		"oldCategory":      t.OldCategory,
		"priority":         t.Priority,
		"quality":          t.Quality,
		"retry":            t.Retry,
		"stage":            t.Stage,
		"status":           string(t.Status),
		"templateType":     string(t.Type),
		"wabaId":           t.WabaID,
	}
}

// ComputeHash returns the hex SHA-256 of the fingerprint serialized as JSON.
// encoding/json writes map keys in sorted order, nested maps included, so the
// digest does not depend on field or key insertion order.
func (t *Template) ComputeHash() string {
	body, err := json.Marshal(t.fingerprint())
	if err != nil {
		// Blob values come from JSON decoding and always re-encode.
		panic("template: fingerprint is not serializable: " + err.Error())
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Rehash refreshes the stored hash. Storage calls it on every save.
func (t *Template) Rehash() {
	t.Hash = t.ComputeHash()
}
