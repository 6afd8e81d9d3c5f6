// Package firestore parses alternating collection/document paths such as
// "bands/b1/albums/a1".
package firestore

import (
	"strings"

	"firestore-odm/internal/shared/errors"
)

// PathSeparator separates alternating collection and document segments
const PathSeparator = "/"

const maxIDLength = 1500

// SplitPath splits a path on the separator without dropping empty segments,
// so "bands/" yields two segments and fails parity checks.
func SplitPath(path string) []string {
	return strings.Split(path, PathSeparator)
}

// GetLastSegment returns the terminal collection name of a collection path.
// The path must be non-empty, hold an odd number of segments and must not
// end with an empty segment.
func GetLastSegment(path string) (string, error) {
	var reason string
	segments := SplitPath(path)
	switch {
	case path == "":
		reason = "path must be a non-empty string"
	case len(segments)%2 == 0:
		reason = "path must have an odd number of segments"
	case segments[len(segments)-1] == "":
		reason = "path must not end with an empty segment"
	default:
		return segments[len(segments)-1], nil
	}
	return "", errors.NewInvalidInputError(reason).WithDetail("path", path)
}

// CollectionSegments returns the collection-name positions (even indexes) of
// a collection path: "bands/b1/albums" gives [bands albums].
func CollectionSegments(path string) ([]string, error) {
	segments := SplitPath(path)
	if path == "" || len(segments)%2 == 0 {
		return nil, errors.NewIncompleteOrInvalidPathError(path)
	}

	names := make([]string, 0, len(segments)/2+1)
	for i := 0; i < len(segments); i += 2 {
		names = append(names, segments[i])
	}
	return names, nil
}

// SubCollectionPath builds the path of a subcollection owned by a document:
// ("bands", "b1", "albums") gives "bands/b1/albums".
func SubCollectionPath(collectionPath, documentID, subCollectionName string) string {
	return strings.Join([]string{collectionPath, documentID, subCollectionName}, PathSeparator)
}

// SplitDocumentPath returns the collection path and id of a document path.
// A path without separator has no parent.
func SplitDocumentPath(path string) (parent, id string) {
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// IsValidID reports whether id can be used as a document id or collection
// name: non-empty, at most 1500 bytes, no separator, and not "." or "..".
// Any other character, spaces and dots included, is accepted.
func IsValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > maxIDLength {
		return false
	}
	return !strings.Contains(id, PathSeparator)
}

// ValidateCollectionPath checks parity and every segment of a collection path
func ValidateCollectionPath(path string) error {
	segments := SplitPath(path)
	if path == "" || len(segments)%2 == 0 {
		return errors.NewValidationError("invalid collection path: must have an odd number of segments").
			WithDetail("path", path)
	}

	for i, segment := range segments {
		if !IsValidID(segment) {
			return errors.NewValidationError("invalid segment in collection path").
				WithDetail("path", path).
				WithDetail("segment", segment).
				WithDetail("position", i)
		}
	}
	return nil
}
