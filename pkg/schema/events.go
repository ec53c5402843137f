package schema

// Activity event types recorded in the project event log and fanned out to
// live subscribers.
const (
	EventProjectCreated  = "project_created"
	EventProjectImported = "project_imported"
	EventProjectUpdated  = "project_updated"
	EventProjectDeleted  = "project_deleted"
	EventProjectExported = "project_exported"

	EventBlockAdded   = "block_added"
	EventBlockUpdated = "block_updated"
	EventBlockRemoved = "block_removed"
	EventBlockMoved   = "block_moved"

	EventGraphRecomputed = "graph_recomputed"
	EventLayoutApplied   = "layout_applied"

	EventRevisionsPruned = "revisions_pruned"
)
