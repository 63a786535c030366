package storage

import (
	"fmt"
	"strings"
	"time"
)

// ArchiveObjectPath composes <prefix>/YYYY/MM/DD/<entryID>.json using the UTC date of createdAt.
func ArchiveObjectPath(prefix, entryID string, createdAt time.Time) (string, error) {
	id, err := validateSegment("entryID", entryID)
	if err != nil {
		return "", err
	}
	if createdAt.IsZero() {
		return "", fmt.Errorf("storage: createdAt is required")
	}
	day := createdAt.UTC().Format("2006/01/02")

	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", day, id), nil
	}
	for _, part := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", part); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, day, id), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
