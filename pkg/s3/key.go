package s3

import (
	"fmt"
	"path"
	"strings"
)

type ArtifactType string

const (
	ArtifactOriginal ArtifactType = "original"
	ArtifactDetected ArtifactType = "detected"
	ArtifactCropped  ArtifactType = "cropped"
)

// BuildKey returns the object key for a run artifact:
// users/{owner}/runs/{run}/{type}_{name}, or users/{owner}/runs/{run}/cropped/{name}
// for crops.
func BuildKey(ownerID, runID, fileName string, artifactType ArtifactType) string {
	prefix := fmt.Sprintf("users/%s/runs/%s", sanitizeSegment(ownerID), sanitizeSegment(runID))
	name := SanitizeFileName(fileName)

	if artifactType == ArtifactCropped {
		return fmt.Sprintf("%s/cropped/%s", prefix, name)
	}
	return fmt.Sprintf("%s/%s_%s", prefix, artifactType, name)
}

// SanitizeFileName keeps the base name and drops every character outside
// [A-Za-z0-9.].
func SanitizeFileName(fileName string) string {
	name := keepKeyChars(path.Base(strings.ReplaceAll(fileName, "\\", "/")), ".")
	if strings.Trim(name, ".") == "" {
		return "image"
	}
	return name
}

func sanitizeSegment(segment string) string {
	s := keepKeyChars(segment, "-_")
	if s == "" {
		return "unknown"
	}
	return s
}

func keepKeyChars(s string, extra string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(extra, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
