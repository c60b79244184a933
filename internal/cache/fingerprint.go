package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a deterministic 128-bit-class hash (two xxhash
// passes over a canonicalized JSON encoding) over the given inputs, stable
// regardless of map key ordering.
func Fingerprint(inputs ...interface{}) string {
	canon := canonicalize(inputs)
	data, err := json.Marshal(canon)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", inputs))
	}
	lo := xxhash.Sum64(data)
	hi := xxhash.Sum64(append(data, 0xff))
	return fmt.Sprintf("%016x%016x", hi, lo)
}

// canonicalize recursively sorts map keys so that equal logical inputs
// always serialize to the same bytes.
func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]interface{}, 0, len(keys)*2)
		for _, k := range keys {
			ordered = append(ordered, k, canonicalize(val[k]))
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}
