package utils

import (
	"errors"
	"strings"
)

const storageURLPrefix = "https://storage.googleapis.com/"

var ErrNotStorageURL = errors.New("not a storage object URL")

// IsStorageURL reports whether url points at an object we host.
func IsStorageURL(url string) bool {
	_, err := ExtractObjectPath(url)
	return err == nil
}

// ExtractObjectPath turns a public storage URL back into its object path,
// dropping the bucket segment.
func ExtractObjectPath(url string) (string, error) {
	rest, ok := strings.CutPrefix(url, storageURLPrefix)
	if !ok {
		return "", ErrNotStorageURL
	}
	_, path, found := strings.Cut(rest, "/")
	if !found || path == "" {
		return "", ErrNotStorageURL
	}
	return path, nil
}
