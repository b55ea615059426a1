package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalithlochan/templar/internal/template"
)

func TestNormalizeButtons(t *testing.T) {
	raw := []any{
		map[string]any{"type": "QUICK_REPLY", "text": "Yes", "extra": "dropped"},
		map[string]any{"type": "URL", "text": "Track", "url": "https://x.io/{{1}}", "buttonValue": "https://x.io/", "suffix": "abc"},
		map[string]any{"type": "PHONE_NUMBER", "text": "Call", "phone_number": "+15550100"},
	}

	buttons, err := normalizeButtons(raw)
	require.NoError(t, err)
	require.Len(t, buttons, 3)
	assert.Equal(t, map[string]any{"type": "QUICK_REPLY", "text": "Yes"}, buttons[0])
	assert.Equal(t, "abc", buttons[1]["suffix"])
	assert.Equal(t, "+15550100", buttons[2]["phone_number"])
}

func TestNormalizeButtons_Rejects(t *testing.T) {
	_, err := normalizeButtons([]any{map[string]any{"type": "OTP"}})
	assert.Error(t, err)

	_, err = normalizeButtons("not a list")
	assert.Error(t, err)

	buttons, err := normalizeButtons(nil)
	assert.NoError(t, err)
	assert.Empty(t, buttons)
}

func TestEncodeForm(t *testing.T) {
	form, err := encodeForm(map[string]any{
		"elementName":  "otp_1",
		"enableSample": false,
		"priority":     3,
		"skipped":      nil,
		"buttons":      []map[string]any{{"type": "QUICK_REPLY", "text": "Yes"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "otp_1", form.Get("elementName"))
	assert.Equal(t, "false", form.Get("enableSample"))
	assert.Equal(t, "3", form.Get("priority"))
	assert.False(t, form.Has("skipped"))

	var buttons []map[string]string
	require.NoError(t, json.Unmarshal([]byte(form.Get("buttons")), &buttons))
	assert.Equal(t, "Yes", buttons[0]["text"])
}

func TestBaseFields(t *testing.T) {
	tpl := template.New("org", "app", "promo", "en", template.TypeImage)
	tpl.Content = "Hi {{1}}"
	tpl.EnableSample = true
	tpl.AllowCategoryChange = true

	fields, err := baseFields(tpl, "4::handle")
	require.NoError(t, err)
	assert.Equal(t, "4::handle", fields["exampleMedia"])
	assert.Equal(t, "IMAGE", fields["templateType"])
	assert.Equal(t, true, fields["allowTemplateCategoryChange"])
	assert.NotContains(t, fields, "buttons")

	tpl.EnableSample = false
	fields, err = baseFields(tpl, "4::handle")
	require.NoError(t, err)
	assert.NotContains(t, fields, "exampleMedia")
}

func TestParseCards(t *testing.T) {
	cards, err := parseCards([]any{
		map[string]any{"headerType": "IMAGE", "body": "Card 1", "sampleText": "Card 1", "mediaUrl": "https://cdn.example.com/1.png",
			"buttons": []any{map[string]any{"type": "QUICK_REPLY", "text": "Buy"}}},
	})
	require.NoError(t, err)
	require.Len(t, cards, 1)

	wire := cards[0].wire("h1")
	assert.Equal(t, "h1", wire["exampleMedia"])
	assert.Len(t, wire["buttons"], 1)

	_, err = parseCards(nil)
	assert.Error(t, err)
}
