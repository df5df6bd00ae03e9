package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Key aliases seen in analysis replies, compared case-insensitively.
var (
	summaryKeys  = []string{"summary", "overview", "resume", "ملخص"}
	itemListKeys = []string{"action_items", "actionitems", "action items", "actions", "tasks", "items", "todos"}
	topicKeys    = []string{"topics", "key_topics", "keytopics", "themes"}
	titleKeys    = []string{"task", "title", "action", "description", "name", "text"}
	deadlineKeys = []string{"deadline", "due", "due_date", "duedate", "when", "date"}
	priorityKeys = []string{"priority", "urgency", "importance"}
)

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// jsonStrategy reads the structured reply the analysis prompt asks for:
// {"summary": ..., "action_items": [{"task", "deadline", "priority"}], "topics": [...]}.
// It tolerates code fences, prose around the object, alternative key names
// and a bare array of items.
type jsonStrategy struct{}

func (jsonStrategy) name() string { return "json" }

func (jsonStrategy) extract(reply string) (*extraction, bool) {
	body := reply
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		body = m[1]
	}

	if obj, ok := decodeBetween[map[string]json.RawMessage](body, "{", "}"); ok {
		if ex, ok := fromObject(obj); ok {
			return ex, true
		}
	}
	if list, ok := decodeBetween[[]json.RawMessage](body, "[", "]"); ok {
		ex := &extraction{}
		for _, raw := range list {
			ex.add(fromItem(raw))
		}
		if len(ex.candidates) > 0 {
			return ex, true
		}
	}
	return nil, false
}

// decodeBetween unmarshals the text from the first open to the last close.
func decodeBetween[T any](s, open, close string) (T, bool) {
	var v T
	start := strings.Index(s, open)
	end := strings.LastIndex(s, close)
	if start < 0 || end <= start {
		return v, false
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &v); err != nil {
		return v, false
	}
	return v, true
}

func fromObject(obj map[string]json.RawMessage) (*extraction, bool) {
	fields := lowerKeys(obj)
	ex := &extraction{}
	known := false

	if raw, ok := lookup(fields, summaryKeys); ok {
		ex.summary = flexString(raw)
		known = true
	}
	if raw, ok := lookup(fields, itemListKeys); ok {
		known = true
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			for _, item := range list {
				ex.add(fromItem(item))
			}
		}
	}
	if raw, ok := lookup(fields, topicKeys); ok {
		known = true
		ex.topics = flexStrings(raw)
	}
	if !known {
		// a single item object
		if c := fromItem(mustMarshal(obj)); c.title != "" {
			ex.add(c)
			return ex, true
		}
	}
	return ex, known
}

func fromItem(raw json.RawMessage) candidate {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// items may be plain strings
		text := flexString(raw)
		c := lineCandidate(text, text)
		return c
	}

	fields := lowerKeys(obj)
	c := candidate{}
	if v, ok := lookup(fields, titleKeys); ok {
		c.title = strings.TrimSpace(flexString(v))
	}
	if v, ok := lookup(fields, deadlineKeys); ok {
		c.deadline = strings.TrimSpace(flexString(v))
	}
	if v, ok := lookup(fields, priorityKeys); ok {
		if p, ok := priorityValue(flexString(v)); ok {
			c.priority = p
		}
	}
	if c.priority == "" {
		if p, ok := findPriority(c.title); ok {
			c.priority = p
		}
	}

	c.excerpt = c.title
	if c.deadline != "" {
		c.excerpt = fmt.Sprintf("%s (%s)", c.title, c.deadline)
	} else {
		c.deadline = c.title
	}
	return c
}

func lowerKeys(obj map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookup(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// flexString renders strings, numbers and booleans as text; null and
// containers become "".
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{', '[', 'n':
		return ""
	}
	return string(raw)
}

// flexStrings accepts a list of strings or a single comma-separated string.
func flexStrings(raw json.RawMessage) []string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, v := range list {
			if s := strings.TrimSpace(flexString(v)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return splitTopics(flexString(raw))
}

func mustMarshal(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
