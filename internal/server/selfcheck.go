package server

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SelfCheck verifies the data directory is writable and the listen address is
// bindable before the server starts. This is the only startup path that may
// abort the process.
func SelfCheck(dataDir, addr string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir not creatable: %w", err)
	}

	probe := filepath.Join(dataDir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	_ = os.Remove(probe)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen address unavailable: %w", err)
	}
	_ = l.Close()

	return nil
}
