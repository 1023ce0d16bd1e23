package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Node is the untyped field set stored at a graph path. A nil Node
// stands for a tombstone.
type Node map[string]interface{}

// Str returns the first non-empty string value among the given keys
func (n Node) Str(keys ...string) string {
	for _, k := range keys {
		if s, ok := n[k].(string); ok && strings.TrimSpace(s) != `` {
			return s
		}
	}
	return ``
}

// Num returns the first numeric value among the given keys. Values decoded
// from replicated JSON arrive as float64 or json.Number.
func (n Node) Num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := n[k].(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case int32:
			return float64(v), true
		case uint64:
			return float64(v), true
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func (n Node) Int(keys ...string) int64 {
	f, _ := n.Num(keys...)
	return int64(f)
}

func (n Node) Bool(key string) bool {
	switch v := n[key].(type) {
	case bool:
		return v
	case string:
		return v == `true`
	}
	return false
}

// Time reads a millisecond unix timestamp, falling back to def when absent
func (n Node) Time(def time.Time, keys ...string) time.Time {
	ms, ok := n.Num(keys...)
	if !ok || ms <= 0 {
		return def
	}
	return time.UnixMilli(int64(ms))
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
