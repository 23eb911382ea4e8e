package provider

import "strings"

var (
	cardNumberKeys = map[string]bool{
		"pan": true, "number": true, "cardnumber": true, "card_number": true,
		"creditcard": true, "cc_number": true,
	}
	cvvKeys = map[string]bool{
		"cvv": true, "cvv2": true, "cv2": true, "cvv2val": true, "cardcvv2": true, "cvc": true,
	}
	expiryKeys = map[string]bool{
		"expires": true, "expiredate": true, "expireddate": true, "expiry": true,
		"ecom_payment_card_expdate_month": true, "ecom_payment_card_expdate_year": true,
		"cardexpiredatemonth": true, "cardexpiredateyear": true,
	}
	secretSubstrings = []string{"password", "storekey", "secret", "apikey"}
)

// SanitizeForLog returns a deep copy of data with card numbers masked and
// CVVs, expiry dates and credentials redacted.
func SanitizeForLog(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return sanitizeMap(data)
}

// ScrubResponse is SanitizeForLog for raw gateway payloads kept in a Result.
func ScrubResponse(raw GatewayResponse) GatewayResponse {
	if raw == nil {
		return nil
	}
	return GatewayResponse(sanitizeMap(raw))
}

func sanitizeRecursive(data any) any {
	switch v := data.(type) {
	case map[string]any:
		return sanitizeMap(v)
	case GatewayRequest:
		return sanitizeMap(v)
	case GatewayResponse:
		return sanitizeMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeRecursive(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeMap(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeMap(data map[string]any) map[string]any {
	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		keyLower := strings.ToLower(key)
		str, isString := value.(string)

		switch {
		case cardNumberKeys[keyLower] && isString:
			sanitized[key] = MaskCardNumber(str)
		case cvvKeys[keyLower], expiryKeys[keyLower]:
			sanitized[key] = "***"
		case isSecretKey(keyLower):
			sanitized[key] = "***REDACTED***"
		default:
			sanitized[key] = sanitizeRecursive(value)
		}
	}
	return sanitized
}

func isSecretKey(key string) bool {
	for _, s := range secretSubstrings {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// MaskCardNumber keeps the first six and last four digits.
func MaskCardNumber(cardNumber string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(cardNumber)
	if len(cleaned) < 12 {
		return "****"
	}
	return cleaned[:6] + strings.Repeat("*", len(cleaned)-10) + cleaned[len(cleaned)-4:]
}
