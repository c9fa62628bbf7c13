package sqlite

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// encodeEmbedding serializes a vector as a little-endian float32 blob.
// Returns nil for an empty vector so the column stores NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeEmbedding deserializes a little-endian float32 blob.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// encodeTags serializes tags as a JSON array. Empty tag sets store NULL.
func encodeTags(tags []string) []byte {
	if len(tags) == 0 {
		return nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return b
}

// decodeTags parses a stored tags value. Malformed JSON degrades to a
// best-effort comma split rather than failing the read.
func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err == nil {
		return tags
	}

	parts := strings.Split(strings.Trim(raw, "[]"), ",")
	tags = tags[:0]
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// encodeMeta serializes the open metadata map as JSON. Empty maps store NULL.
func encodeMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta: %w", err)
	}
	return b, nil
}

// decodeMeta parses stored metadata. Numbers decode as json.Number so values
// round-trip exactly. Malformed JSON degrades to an empty map.
func decodeMeta(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return map[string]any{}
	}
	return meta
}
