//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"
)

// AcquireLock acquires an exclusive lock to prevent multiple instances
// from starting, via an O_EXCL-created lock file: the platform-portable
// equivalent of lock_windows.go's exclusive-handle CreateFile.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.pidFilePath + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to acquire lock (another instance may be starting): %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "%d", os.Getpid())
	m.acquiredLock = true
	return nil
}

// ReleaseLock releases the exclusive lock.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}

	lockPath := m.pidFilePath + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Failed to remove lock file: %v\n", err)
	}

	m.acquiredLock = false
	return nil
}
