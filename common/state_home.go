package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetCortexStateHome returns a directory path for storing user-specific
// cortex state data (logs, traces, etc). If needed, it also creates the
// necessary directories for storing state data according to the XDG spec.
// Can be overridden by setting the CORTEX_STATE_HOME environment variable.
func GetCortexStateHome() (string, error) {
	cortexStateDir := os.Getenv("CORTEX_STATE_HOME")
	if cortexStateDir != "" {
		err := os.MkdirAll(cortexStateDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create cortex state directory from CORTEX_STATE_HOME: %w", err)
		}
		return cortexStateDir, nil
	}

	cortexStateDir = filepath.Join(xdg.StateHome, "cortex")
	err := os.MkdirAll(cortexStateDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create cortex state directory: %w", err)
	}
	return cortexStateDir, nil
}
