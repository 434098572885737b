package constants

import "github.com/google/uuid"

// Root constants
var (
	// RootFractalID is the fixed identifier of the graph root
	RootFractalID = uuid.Nil
)

const (
	// RootFractalName is the conventional name of the graph root
	RootFractalName = "Root"
)

// HTTP server constants
const (
	// ShutdownTimeoutSeconds bounds graceful shutdown of the API server
	ShutdownTimeoutSeconds = 5

	// MaxKnowledgeContexts caps the context filters accepted on one knowledge query
	MaxKnowledgeContexts = 32
)
