package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createManageItemsTool returns the manage_items tool definition
func createManageItemsTool() mcp.Tool {
	return mcp.NewTool("manage_items",
		mcp.WithDescription("Create, update or delete work items. Accepts a single item or an items array for batch; batch elements succeed or fail independently"),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("One of: create, update, delete"),
		),
		mcp.WithObject("item",
			mcp.Description("Single item payload: {id?, parentId?, title?, description?, tags?, priority?, recursive?}"),
		),
		mcp.WithArray("items",
			mcp.Description("Batch form: array of item payloads"),
		),
	)
}

// createQueryItemsTool returns the query_items tool definition
func createQueryItemsTool() mcp.Tool {
	return mcp.NewTool("query_items",
		mcp.WithDescription("Query work items: get by id, search by text/tags/role/status/parent, or a global overview"),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("One of: get, search, overview"),
		),
		mcp.WithString("id", mcp.Description("Item ID (get)")),
		mcp.WithString("text", mcp.Description("Substring match on title and description (search)")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags the item must carry (search)")),
		mcp.WithString("role", mcp.Description("Filter by role: queue, work, review, blocked, terminal (search)")),
		mcp.WithString("status", mcp.Description("Filter by exact status (search)")),
		mcp.WithString("parentId", mcp.Description("Filter by direct parent (search)")),
		mcp.WithBoolean("includeAncestors", mcp.Description("Attach the root-first ancestor chain to each item")),
		mcp.WithBoolean("includeChildren", mcp.Description("Attach direct children (get, overview)")),
	)
}

// createManageNotesTool returns the manage_notes tool definition
func createManageNotesTool() mcp.Tool {
	return mcp.NewTool("manage_notes",
		mcp.WithDescription("Upsert or delete notes on work items. Notes are keyed per item and gate role transitions via note schemas"),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("One of: upsert, delete"),
		),
		mcp.WithObject("note",
			mcp.Description("Single note payload: {itemId, key, phase?, body?}"),
		),
		mcp.WithArray("notes",
			mcp.Description("Batch form: array of note payloads"),
		),
	)
}

// createQueryNotesTool returns the query_notes tool definition
func createQueryNotesTool() mcp.Tool {
	return mcp.NewTool("query_notes",
		mcp.WithDescription("List an item's notes together with the schema-expected note set"),
		mcp.WithString("itemId",
			mcp.Required(),
			mcp.Description("Item ID"),
		),
		mcp.WithString("phase", mcp.Description("Filter by phase: queue, work, review, blocked, terminal")),
	)
}

// createManageDependenciesTool returns the manage_dependencies tool definition
func createManageDependenciesTool() mcp.Tool {
	return mcp.NewTool("manage_dependencies",
		mcp.WithDescription("Create or delete typed dependency edges (BLOCKS, IS_BLOCKED_BY, RELATES_TO). Supports explicit edges or the patterns linear, fan-out and fan-in"),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("One of: create, delete"),
		),
		mcp.WithObject("dependency",
			mcp.Description("Single edge: {from, to, type}"),
		),
		mcp.WithArray("dependencies",
			mcp.Description("Explicit edge list"),
		),
		mcp.WithString("pattern", mcp.Description("Shortcut pattern: linear (items[0]→items[1]→…), fan-out (from→items), fan-in (items→to)")),
		mcp.WithArray("items", mcp.WithStringItems(), mcp.Description("Item IDs for the pattern forms")),
		mcp.WithString("from", mcp.Description("Source item for fan-out")),
		mcp.WithString("to", mcp.Description("Target item for fan-in")),
		mcp.WithString("type", mcp.Description("Edge type for pattern forms (default BLOCKS)")),
	)
}

// createQueryDependenciesTool returns the query_dependencies tool definition
func createQueryDependenciesTool() mcp.Tool {
	return mcp.NewTool("query_dependencies",
		mcp.WithDescription("Inspect dependency edges for one or more items; optionally walk the full BFS chain"),
		mcp.WithString("itemId", mcp.Description("Single seed item")),
		mcp.WithArray("itemIds", mcp.WithStringItems(), mcp.Description("Multiple seed items")),
		mcp.WithString("direction", mcp.Description("Chain direction: outgoing (default) or incoming")),
		mcp.WithBoolean("neighborsOnly", mcp.Description("Direct edges only (default true); false returns the BFS chain with distances")),
		mcp.WithNumber("maxDepth", mcp.Description("Bound on chain depth; 0 means unbounded")),
	)
}

// createAdvanceItemTool returns the advance_item tool definition
func createAdvanceItemTool() mcp.Tool {
	return mcp.NewTool("advance_item",
		mcp.WithDescription("Apply a workflow trigger (start, complete, cancel, block, hold, resume, back) to an item, or a transitions array for batch. Cascades and unblocked-item discovery are included in the response"),
		mcp.WithString("itemId", mcp.Description("Item ID (single form)")),
		mcp.WithString("trigger", mcp.Description("Trigger verb (single form)")),
		mcp.WithString("summary", mcp.Description("Optional free-text summary of the work done")),
		mcp.WithArray("transitions",
			mcp.Description("Batch form: array of {itemId, trigger, summary?} applied in order as independent transactions"),
		),
		mcp.WithString("actor", mcp.Description("Attribution recorded in the role-transition log")),
	)
}

// createGetNextStatusTool returns the get_next_status tool definition
func createGetNextStatusTool() mcp.Tool {
	return mcp.NewTool("get_next_status",
		mcp.WithDescription("Read-only recommendation for an item's next transition: ready, blocked (with missing notes or unresolved blockers), or terminal"),
		mcp.WithString("itemId",
			mcp.Required(),
			mcp.Description("Item ID"),
		),
		mcp.WithString("status", mcp.Description("What-if: evaluate as if the item held this status")),
		mcp.WithString("tags", mcp.Description("What-if: evaluate as if the item carried these comma-separated tags")),
	)
}

// createGetContextTool returns the get_context tool definition
func createGetContextTool() mcp.Tool {
	return mcp.NewTool("get_context",
		mcp.WithDescription("Working context: item mode (gate status, notes, blockers), session mode (active items and recent transitions), or health mode (counts and stalled items)"),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("One of: item, session, health"),
		),
		mcp.WithString("itemId", mcp.Description("Item ID (item mode)")),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp bounding session mode (default: 24h ago)")),
		mcp.WithBoolean("includeAncestors", mcp.Description("Attach ancestor chains to returned items")),
	)
}

// createGetNextItemTool returns the get_next_item tool definition
func createGetNextItemTool() mcp.Tool {
	return mcp.NewTool("get_next_item",
		mcp.WithDescription("Priority-ranked recommendation of the next actionable item: queue or work role, gate satisfied, no unresolved blockers"),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Restrict candidates to items carrying all of these tags")),
		mcp.WithString("parentId", mcp.Description("Restrict candidates to children of this item")),
		mcp.WithNumber("limit", mcp.Description("Max alternatives to include (default 5, max 10)")),
	)
}

// createGetBlockedItemsTool returns the get_blocked_items tool definition
func createGetBlockedItemsTool() mcp.Tool {
	return mcp.NewTool("get_blocked_items",
		mcp.WithDescription("Items in role blocked (explicit) plus queue/work items with unresolved blockers (dependency), annotated with blockType and blocker lists"),
		mcp.WithBoolean("includeAncestors", mcp.Description("Attach ancestor chains")),
	)
}

// createCreateWorkTreeTool returns the create_work_tree tool definition
func createCreateWorkTreeTool() mcp.Tool {
	return mcp.NewTool("create_work_tree",
		mcp.WithDescription("Atomically create a root item with nested children, intra-tree dependencies (referencing node keys) and initial notes. All-or-nothing"),
		mcp.WithObject("root",
			mcp.Required(),
			mcp.Description("Root node: {key?, title, description?, tags?, priority?, notes?: [{key, phase, body?}], children?: [node…]}"),
		),
		mcp.WithArray("dependencies",
			mcp.Description("Intra-tree edges: {from, to, type} where from/to are node keys or existing item IDs"),
		),
	)
}

// createCompleteTreeTool returns the complete_tree tool definition
func createCompleteTreeTool() mcp.Tool {
	return mcp.NewTool("complete_tree",
		mcp.WithDescription("Apply complete (gated) or cancel (ungated) to every item of a subtree bottom-up in dependency order; per-item outcomes are reported"),
		mcp.WithString("rootId",
			mcp.Required(),
			mcp.Description("Subtree root item ID"),
		),
		mcp.WithString("trigger", mcp.Description("complete (default) or cancel")),
		mcp.WithString("actor", mcp.Description("Attribution recorded in the role-transition log")),
	)
}
