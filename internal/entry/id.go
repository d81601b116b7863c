package entry

import "fmt"

// DeriveID computes the stable, deterministic entry ID. It never changes
// for a given (session_id, type, sequence_position) triple, and every
// cross-entry relationship field stores one of these IDs rather than
// re-deriving it from text — the vector store is ground truth for
// existence, this function is ground truth for the string shape.
func DeriveID(sessionID string, typ Type, sequencePosition int) string {
	return fmt.Sprintf("%s_%s_%d", sessionID, typ, sequencePosition)
}
