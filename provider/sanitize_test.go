package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "454671******7894", MaskCardNumber("4546711234567894"))
	assert.Equal(t, "454671******7894", MaskCardNumber("4546 7112 3456 7894"))
	assert.Equal(t, "****", MaskCardNumber("12345"))
}

func TestSanitizeForLog(t *testing.T) {
	data := map[string]any{
		"pan":      "4546711234567894",
		"cv2":      "123",
		"Expires":  "12/30",
		"Password": "secret",
		"storekey": "key",
		"oid":      "ORD-1",
		"Card": map[string]any{
			"CardNumber": "4546711234567894",
			"CardCVV2":   "123",
		},
		"items": []any{map[string]any{"apiKey": "k"}},
	}

	got := SanitizeForLog(data)
	assert.Equal(t, "454671******7894", got["pan"])
	assert.Equal(t, "***", got["cv2"])
	assert.Equal(t, "***", got["Expires"])
	assert.Equal(t, "***REDACTED***", got["Password"])
	assert.Equal(t, "***REDACTED***", got["storekey"])
	assert.Equal(t, "ORD-1", got["oid"])

	card := got["Card"].(map[string]any)
	assert.Equal(t, "454671******7894", card["CardNumber"])
	assert.Equal(t, "***", card["CardCVV2"])

	items := got["items"].([]any)
	assert.Equal(t, "***REDACTED***", items[0].(map[string]any)["apiKey"])

	assert.Equal(t, "4546711234567894", data["pan"], "input is not modified")
	assert.Nil(t, SanitizeForLog(nil))
	assert.Nil(t, ScrubResponse(nil))
}
