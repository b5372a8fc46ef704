package marketapi

import "encoding/base64"

// DecodeTag decodes a base64, NUL-padded tag as it arrives on the wire
// into the plain string the rest of the system correlates against
// configured node tags (§4.1, §8 "tag round-trip" law).
func DecodeTag(wire string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return "", err
	}
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end]), nil
}

// EncodeTag is DecodeTag's inverse: base64 of the raw tag bytes, with no
// NUL padding added (the marketplace pads on its own side).
func EncodeTag(tag string) string {
	return base64.StdEncoding.EncodeToString([]byte(tag))
}

// decodeTag is DecodeTag with the zero-value-on-failure convention the
// Client/MarketAPI boundary uses throughout: a malformed wire tag never
// surfaces as an error, it just fails to correlate against any
// configured node.
func decodeTag(wire string) string {
	tag, err := DecodeTag(wire)
	if err != nil {
		return ""
	}
	return tag
}
