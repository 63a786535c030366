package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hanko-field/orderdesk/internal/platform/textutil"
)

type auditTextField int

const (
	fieldActor auditTextField = iota
	fieldAction
	fieldScope
	fieldTargetRef
	fieldTargetID
	fieldRequestID
	fieldUserAgent
	fieldMetadataKey
	fieldMetadataValue
)

// Byte limits per stored field.
var auditFieldLimits = [...]int{
	fieldActor:         160,
	fieldAction:        120,
	fieldScope:         40,
	fieldTargetRef:     200,
	fieldTargetID:      128,
	fieldRequestID:     128,
	fieldUserAgent:     256,
	fieldMetadataKey:   80,
	fieldMetadataValue: 512,
}

var auditActorTypes = map[string]struct{}{"user": {}, "staff": {}, "system": {}, "service": {}}

// auditField trims value, drops control characters other than whitespace, and cuts it at the
// field's limit without splitting a rune.
func auditField(field auditTextField, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	limit := auditFieldLimits[field]
	var b strings.Builder
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= limit {
			break
		}
	}
	return b.String()
}

var auditActorPrefixes = []struct{ prefix, kind string }{
	{"/users/", "user"},
	{"user:", "user"},
	{"/staff/", "staff"},
	{"staff:", "staff"},
	{"system:", "system"},
}

// actorTypeOf keeps a recognised explicit type, otherwise infers one from the actor reference.
func actorTypeOf(explicit, actor string) string {
	explicit = strings.ToLower(strings.TrimSpace(explicit))
	if _, ok := auditActorTypes[explicit]; ok {
		return explicit
	}
	actor = strings.ToLower(strings.TrimSpace(actor))
	if actor == "system" {
		return "system"
	}
	for _, p := range auditActorPrefixes {
		if strings.HasPrefix(actor, p.prefix) {
			return p.kind
		}
	}
	return "unknown"
}

func severityOf(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	}
	return "info"
}

// auditValues cleans a filter or parameter map. Nil values and blank keys are dropped.
func auditValues(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		key = auditField(fieldMetadataKey, key)
		if key == "" || value == nil {
			continue
		}
		out[key] = auditValue(value)
	}
	return out
}

func auditValue(value any) any {
	switch v := value.(type) {
	case string:
		return auditField(fieldMetadataValue, textutil.StripMarkup(v))
	case fmt.Stringer:
		return auditField(fieldMetadataValue, textutil.StripMarkup(v.String()))
	case map[string]any:
		return auditValues(v)
	}
	return value
}

// keySet lower-cases keys for case-insensitive lookups.
func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key = auditField(fieldMetadataKey, key); key != "" {
			set[strings.ToLower(key)] = struct{}{}
		}
	}
	return set
}
