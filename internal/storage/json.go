package storage

import "encoding/json"

// jsonEncode marshals v to a JSON string for a TEXT column, returning ""
// (stored as NULL via sql.NullString conversion at the call site) for an
// untyped nil v. A typed nil slice or map encodes as "null", and an empty
// one as "[]" or "{}".
func jsonEncode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func jsonDecode[T any](s string) (T, error) {
	var out T
	if s == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(s), &out)
	return out, err
}
