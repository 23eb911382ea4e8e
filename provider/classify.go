package provider

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CodeTable classifies gateway return codes. Every code yields a status:
// codes outside Approved and Waiting are declined, and codes missing from
// Details get DetailGeneralError.
type CodeTable struct {
	Approved []string
	Waiting  []string
	Details  map[string]string
}

// Classify returns the canonical status and detail for code.
func (t CodeTable) Classify(code string) (Status, string) {
	for _, c := range t.Approved {
		if c == code {
			return StatusApproved, DetailApproved
		}
	}
	for _, c := range t.Waiting {
		if c == code {
			return StatusWaiting, t.detail(code)
		}
	}
	return StatusDeclined, t.detail(code)
}

func (t CodeTable) detail(code string) string {
	if d, ok := t.Details[code]; ok {
		return d
	}
	return DetailGeneralError
}

// MdStatusTable labels 3-D Secure authentication results.
type MdStatusTable struct {
	Full     []string
	Half     []string
	Rejected []string
}

const (
	SecurityFull3D       = "Full 3D Secure"
	SecurityHalf3D       = "Half 3D Secure"
	SecurityMPIFallback  = "MPI fallback"
	SecurityAuthRejected = "3D Auth Rejected"
)

// DefaultMdStatus is the table shared by the EST and Garanti families.
var DefaultMdStatus = MdStatusTable{
	Full:     []string{"1"},
	Half:     []string{"2", "3", "4"},
	Rejected: []string{"5", "6", "7", "8"},
}

// Label returns the human-readable security label. It never gates approval.
func (t MdStatusTable) Label(mdStatus string) string {
	switch {
	case contains(t.Full, mdStatus):
		return SecurityFull3D
	case contains(t.Half, mdStatus):
		return SecurityHalf3D
	case contains(t.Rejected, mdStatus):
		return SecurityAuthRejected
	default:
		return SecurityMPIFallback
	}
}

// Authenticated reports whether the flow may proceed to final
// authorization. Only explicit rejections stop it; MPI fallback proceeds
// and the bank decides.
func (t MdStatusTable) Authenticated(mdStatus string) bool {
	return !contains(t.Rejected, mdStatus)
}

// Verified reports whether the card holder was fully or half
// authenticated.
func (t MdStatusTable) Verified(mdStatus string) bool {
	return contains(t.Full, mdStatus) || contains(t.Half, mdStatus)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Str reads a nested value as a trimmed string. Keys match exactly first,
// then case-insensitively or by XML local name; numbers and booleans are
// formatted.
func Str(data map[string]any, path ...string) string {
	return strings.TrimSpace(RawStr(data, path...))
}

// RawStr is Str without trimming. Hash verification uses it so values are
// signed byte for byte as the bank sent them.
func RawStr(data map[string]any, path ...string) string {
	v, ok := lookup(data, path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Map reads a nested object; missing or non-object values yield nil.
func Map(data map[string]any, path ...string) map[string]any {
	v, ok := lookup(data, path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case GatewayResponse:
		return t
	}
	return nil
}

// List reads a nested array of objects. A single object is returned as a
// one-element list, which is how XML decoders represent a lone child.
func List(data map[string]any, path ...string) []map[string]any {
	v, ok := lookup(data, path)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func lookup(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			if g, isResp := cur.(GatewayResponse); isResp {
				m = g
			} else {
				return nil, false
			}
		}
		v, found := m[key]
		if !found {
			for k, val := range m {
				if strings.EqualFold(k, key) || strings.EqualFold(localName(k), key) {
					v, found = val, true
					break
				}
			}
		}
		if !found {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// localName strips an XML namespace prefix ("a:Value" -> "Value").
func localName(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// StringMap flattens a one-level response into untrimmed strings, the
// shape hash verification works on.
func StringMap(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k := range data {
		out[k] = RawStr(data, k)
	}
	return out
}
