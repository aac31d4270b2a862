package multipart

import "encoding/json"

// State: непрозрачное состояние части. Схему задаёт конкретный тип части.
// Значения должны быть простыми (числа, строки, bool, map[string]interface{}, []interface{}),
// чтобы переживать JSON и protobuf Struct.
type State map[string]interface{}

// Int читает целое значение, учитывая что после декодирования числа приходят как float64
func (s State) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// String читает строковое значение
func (s State) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Bool читает логическое значение
func (s State) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// Clone делает неглубокую копию состояния
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
