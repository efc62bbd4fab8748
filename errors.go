package graphqa

import "github.com/creditrisk/graphqa/qaerr"

// Sentinel errors for checking Answer.Err and Open errors with errors.Is.
var (
	// ErrSchemaLoad indicates the graph schema could not be introspected.
	ErrSchemaLoad = qaerr.ErrSchemaLoad

	// ErrNotLoaded indicates a question was asked before a schema was loaded.
	ErrNotLoaded = qaerr.ErrNotLoaded

	// ErrGeneration indicates the language model call failed.
	ErrGeneration = qaerr.ErrGeneration

	// ErrUnanswerableAfterRetries indicates every attempt produced an
	// invalid query.
	ErrUnanswerableAfterRetries = qaerr.ErrUnanswerableAfterRetries

	// ErrExecution indicates the graph store rejected or failed the query.
	ErrExecution = qaerr.ErrExecution

	// ErrMapping indicates a record could not be mapped to an entity.
	ErrMapping = qaerr.ErrMapping

	// ErrTimeout indicates the caller's deadline expired.
	ErrTimeout = qaerr.ErrTimeout

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = qaerr.ErrInvalidConfig
)
