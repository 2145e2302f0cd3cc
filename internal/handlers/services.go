package handlers

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/services/graph"
	"github.com/ternarybob/trellis/internal/services/schema"
	"github.com/ternarybob/trellis/internal/services/trees"
	"github.com/ternarybob/trellis/internal/services/workflow"
)

// Services bundles everything the tool handlers dispatch to. Handlers are
// stateless closures over this value.
type Services struct {
	Config  *common.Config
	Store   interfaces.StorageManager
	Graph   *graph.Service
	Schemas *schema.Service
	Engine  *workflow.Engine
	Trees   *trees.Service
	Logger  arbor.ILogger
}
