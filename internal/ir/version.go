package ir

// Version constants for the term schema and engine.
const (
	// IRVersion is the term schema version recorded in the fact log.
	IRVersion = "1"

	// EngineVersion is the hyperlore engine version.
	EngineVersion = "0.1.0"
)
