package canonical

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Encode serializes a record's field map into its canonical byte form: a
// compact JSON object with keys in lexicographic order and standard JSON
// string escaping. The output is a function of content only, so the same data
// hashes identically across runs regardless of map iteration order.
func Encode(data map[string]string) []byte {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		writeString(&buf, data[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail.
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}
