// Package storage provides the optional execution-history store.
//
// It is an append-only audit of ExecutionResults, not job persistence:
// nothing is loaded back into the engine on restart.
package storage
