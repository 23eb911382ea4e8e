package provider

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// HashAlgorithm names a digest or HMAC primitive.
type HashAlgorithm string

const (
	SHA1       HashAlgorithm = "sha1"
	SHA256     HashAlgorithm = "sha256"
	SHA512     HashAlgorithm = "sha512"
	HMACSHA256 HashAlgorithm = "hmac-sha256"
	HMACSHA512 HashAlgorithm = "hmac-sha512"
)

// HashEncoding is how the raw digest is turned into text.
type HashEncoding int

const (
	EncodingBase64 HashEncoding = iota
	EncodingHex
)

// Charset is the byte encoding applied to the hashed text.
type Charset string

const (
	CharsetUTF8     Charset = "utf-8"
	CharsetISO88591 Charset = "iso-8859-1"
	CharsetISO88599 Charset = "iso-8859-9"
)

// HashSpec declares how one gateway signs a field list.
//
// For plain digests the secret is appended as the last element; for HMAC
// algorithms it is the key. Escape, when set, is applied to every element
// including the secret.
type HashSpec struct {
	Algorithm HashAlgorithm
	Encoding  HashEncoding
	Charset   Charset
	Delimiter string
	Upper     bool
	Escape    func(string) string
}

// Sign joins fields in the given order and returns the encoded digest.
func (s HashSpec) Sign(secret string, fields ...string) (string, error) {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		parts = append(parts, s.escape(f))
	}

	var h hash.Hash
	switch s.Algorithm {
	case SHA1:
		h = sha1.New()
	case SHA256:
		h = sha256.New()
	case SHA512:
		h = sha512.New()
	case HMACSHA256:
		h = hmac.New(sha256.New, []byte(secret))
	case HMACSHA512:
		h = hmac.New(sha512.New, []byte(secret))
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s.Algorithm)
	}
	if !s.isHMAC() && secret != "" {
		parts = append(parts, s.escape(secret))
	}

	payload, err := encodeCharset(strings.Join(parts, s.Delimiter), s.Charset)
	if err != nil {
		return "", err
	}
	h.Write(payload)
	sum := h.Sum(nil)

	if s.Encoding == EncodingHex {
		out := hex.EncodeToString(sum)
		if s.Upper {
			out = strings.ToUpper(out)
		}
		return out, nil
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Verify recomputes the signature and compares it in constant time. Hex
// signatures compare case-insensitively.
func (s HashSpec) Verify(supplied, secret string, fields ...string) bool {
	if supplied == "" {
		return false
	}
	expected, err := s.Sign(secret, fields...)
	if err != nil {
		return false
	}
	if s.Encoding == EncodingHex {
		expected = strings.ToLower(expected)
		supplied = strings.ToLower(supplied)
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

func (s HashSpec) isHMAC() bool {
	return s.Algorithm == HMACSHA256 || s.Algorithm == HMACSHA512
}

func (s HashSpec) escape(v string) string {
	if s.Escape == nil {
		return v
	}
	return s.Escape(v)
}

func encodeCharset(s string, cs Charset) ([]byte, error) {
	switch cs {
	case "", CharsetUTF8:
		return []byte(s), nil
	case CharsetISO88591:
		out, err := charmap.ISO8859_1.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", cs, err)
		}
		return []byte(out), nil
	case CharsetISO88599:
		out, err := charmap.ISO8859_9.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", cs, err)
		}
		return []byte(out), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", cs)
	}
}

// EscapePipe escapes backslash and pipe, the separator of pipe-joined
// hash strings.
func EscapePipe(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "|", `\|`)
}

// SortedValues returns the values of data ordered by case-insensitive key,
// skipping the excluded keys (compared case-insensitively).
func SortedValues(data map[string]string, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[strings.ToLower(e)] = true
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		if !skip[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li == lj {
			return keys[i] < keys[j]
		}
		return li < lj
	})
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = data[k]
	}
	return values
}

// HashParamValues resolves a gateway-supplied list of field names (for
// example "clientid:oid:mdStatus:") to their values in data. Empty names
// are skipped; missing fields yield "".
func HashParamValues(data GatewayResponse, params, sep string) []string {
	var values []string
	for _, name := range strings.Split(params, sep) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		values = append(values, RawStr(data, name))
	}
	return values
}

// RandomHex returns n random hex characters.
func RandomHex(n int) (string, error) {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return hex.EncodeToString(b)[:n], nil
}

// RandomString returns n random alphanumeric characters.
func RandomString(n int) (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}
