package common

import (
	"fmt"
	"os"
	"strconv"
)

// Default ports for the cortex service constellation. Each service reads its
// own port from the environment so the constellation can be split across
// processes without code changes.
const (
	defaultBrainPort    = 8500
	defaultProxyPort    = 8501
	defaultLedgerPort   = 8502
	defaultAPIPort      = 8503
	defaultChromaDBPort = 8504
	defaultContactsPort = 8505
)

func portFromEnv(name string, fallback int) int {
	port := os.Getenv(name)
	if port == "" {
		return fallback
	}

	intPort, err := strconv.Atoi(port)
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s: %s", name, port))
	}
	return intPort
}

// GetBrainPort returns the port the orchestrator service listens on.
func GetBrainPort() int {
	return portFromEnv("BRAIN_PORT", defaultBrainPort)
}

// GetProxyPort returns the port the LLM proxy service listens on.
func GetProxyPort() int {
	return portFromEnv("PROXY_PORT", defaultProxyPort)
}

// GetLedgerPort returns the port the conversation ledger service listens on.
func GetLedgerPort() int {
	return portFromEnv("LEDGER_PORT", defaultLedgerPort)
}

// GetAPIPort returns the port of the external notes/API service. Cortex does
// not serve this port itself; the accessor exists so adjunct tooling shares
// one source of truth for service discovery.
func GetAPIPort() int {
	return portFromEnv("API_PORT", defaultAPIPort)
}

// GetChromaDBPort returns the port of the external vector store.
func GetChromaDBPort() int {
	return portFromEnv("CHROMADB_PORT", defaultChromaDBPort)
}

// GetContactsPort returns the port the contacts service listens on.
func GetContactsPort() int {
	return portFromEnv("CONTACTS_PORT", defaultContactsPort)
}

// GetNatsPort returns the port for the embedded NATS server used for the
// turn-event stream.
func GetNatsPort() int {
	return portFromEnv("CORTEX_NATS_PORT", defaultBrainPort+10000)
}

// GetNatsServerHost returns the host of the NATS server. Defaults to
// localhost since the server is normally embedded in the same process.
func GetNatsServerHost() string {
	host := os.Getenv("CORTEX_NATS_HOST")
	if host == "" {
		return "localhost"
	}
	return host
}
