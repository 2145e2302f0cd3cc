package main

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/semaphore"
)

// withConcurrencyCap bounds concurrent tool executions. Waiters queue on
// the request context, so a dropped client releases its slot.
func withConcurrencyCap(sem *semaphore.Weighted, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
		return handler(ctx, request)
	}
}
