//go:build !darwin && !linux

package storage

// filesystemType is unknown on this platform; callers accept any path.
func filesystemType(string) (string, error) { return "", nil }
