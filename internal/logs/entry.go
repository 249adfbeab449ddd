package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Entry is one decoded log line.
type Entry struct {
	Time      string
	Level     slog.Level
	Message   string
	Component string
	RecordID  string
	Fields    map[string]any
}

// ParseEntry decodes a JSON log line. ok is false for blank or non-JSON lines.
func ParseEntry(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{
		Time:      takeString(raw, "ts"),
		Message:   takeString(raw, "msg"),
		Component: takeString(raw, "component"),
		RecordID:  takeString(raw, "record_id"),
	}
	_ = entry.Level.UnmarshalText([]byte(takeString(raw, "level")))
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

func takeString(raw map[string]any, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	delete(raw, key)
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Filter selects entries.
type Filter struct {
	RecordID string
	MinLevel slog.Level
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.RecordID != "" && e.RecordID != f.RecordID {
		return false
	}
	return true
}

// Format renders e in the console layout: "ts LEVEL component · record: msg k=v".
func Format(e Entry) string {
	var b strings.Builder
	if e.Time != "" {
		b.WriteString(e.Time)
		b.WriteByte(' ')
	}
	b.WriteString(e.Level.String())
	subject := e.Component
	if e.RecordID != "" {
		if subject != "" {
			subject += " · "
		}
		subject += "record " + e.RecordID
	}
	if subject != "" {
		b.WriteByte(' ')
		b.WriteString(subject)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}
