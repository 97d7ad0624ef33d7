package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetCortexDataHome returns a directory path for storing user-specific
// cortex data (databases, jetstream storage). If needed, it also creates the
// necessary directories for storing user-specific data according to the XDG
// spec. Can be overridden by setting the CORTEX_DATA_HOME environment
// variable.
func GetCortexDataHome() (string, error) {
	cortexDataDir := os.Getenv("CORTEX_DATA_HOME")
	if cortexDataDir != "" {
		return cortexDataDir, nil
	}

	cortexDataDir = filepath.Join(xdg.DataHome, "cortex")
	err := os.MkdirAll(cortexDataDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create cortex data directory: %w", err)
	}
	return cortexDataDir, nil
}

// GetCortexCacheHome returns a directory path for storing user-specific
// cortex cache data (embedding cache spillover, model token tables). If
// needed, it also creates the necessary directories according to the XDG
// spec. Can be overridden by setting the CORTEX_CACHE_HOME environment
// variable.
func GetCortexCacheHome() (string, error) {
	cortexCacheDir := os.Getenv("CORTEX_CACHE_HOME")
	if cortexCacheDir != "" {
		// If the override is set, ensure this specific directory exists.
		err := os.MkdirAll(cortexCacheDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create cortex cache directory from CORTEX_CACHE_HOME: %w", err)
		}
		return cortexCacheDir, nil
	}

	// Default to XDG cache directory + /cortex
	cortexCacheDir = filepath.Join(xdg.CacheHome, "cortex")
	err := os.MkdirAll(cortexCacheDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create cortex cache directory: %w", err)
	}
	return cortexCacheDir, nil
}
