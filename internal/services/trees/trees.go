// Package trees implements the compound subtree operations: atomic
// creation of a root with nested children, dependencies and notes, and
// batch completion of a subtree in dependency order.
package trees

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/services/graph"
	"github.com/ternarybob/trellis/internal/services/schema"
	"github.com/ternarybob/trellis/internal/services/workflow"
)

// NoteSpec declares a note to attach to a tree node at creation time.
type NoteSpec struct {
	Key   string `json:"key" validate:"required"`
	Phase string `json:"phase" validate:"required"`
	Body  string `json:"body"`
}

// NodeSpec describes one node of a work tree. Key is an optional alias
// used by intra-tree dependency references; it never persists.
type NodeSpec struct {
	Key         string     `json:"key,omitempty"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Tags        string     `json:"tags,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Notes       []NoteSpec `json:"notes,omitempty"`
	Children    []NodeSpec `json:"children,omitempty"`
}

// DependencySpec declares an edge between tree nodes (by alias key) or
// between a tree node and an existing item (by id).
type DependencySpec struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// TreeSpec is the full create_work_tree payload.
type TreeSpec struct {
	Root         NodeSpec         `json:"root" validate:"required"`
	Dependencies []DependencySpec `json:"dependencies,omitempty"`
}

// CreatedNode mirrors the input structure with the persisted items and
// the schema-expected notes for each node.
type CreatedNode struct {
	Item          *models.WorkItem      `json:"item"`
	Key           string                `json:"key,omitempty"`
	ExpectedNotes []models.ExpectedNote `json:"expected_notes,omitempty"`
	Children      []CreatedNode         `json:"children,omitempty"`
}

// CreatedTree is the create_work_tree result.
type CreatedTree struct {
	Root         CreatedNode          `json:"root"`
	ItemCount    int                  `json:"item_count"`
	NoteCount    int                  `json:"note_count"`
	Dependencies []*models.Dependency `json:"dependencies,omitempty"`
}

// CompletionResult is one item's outcome within complete_tree.
type CompletionResult struct {
	ItemID     string                    `json:"item_id"`
	Title      string                    `json:"title"`
	Ok         bool                      `json:"ok"`
	Skipped    bool                      `json:"skipped,omitempty"`
	Transition *models.AppliedTransition `json:"transition,omitempty"`
	Error      *models.ToolError         `json:"error,omitempty"`
}

// TreeCompletion is the complete_tree result.
type TreeCompletion struct {
	RootID    string             `json:"root_id"`
	Results   []CompletionResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
}

// Service builds and completes whole subtrees.
type Service struct {
	store   interfaces.StorageManager
	graph   *graph.Service
	schemas *schema.Service
	engine  *workflow.Engine
	logger  arbor.ILogger
}

// NewService wires the tree service.
func NewService(store interfaces.StorageManager, graphSvc *graph.Service, schemas *schema.Service, engine *workflow.Engine, logger arbor.ILogger) *Service {
	return &Service{
		store:   store,
		graph:   graphSvc,
		schemas: schemas,
		engine:  engine,
		logger:  logger,
	}
}

// flatNode is a node paired with its resolved parent and depth during
// tree materialization.
type flatNode struct {
	spec   *NodeSpec
	item   *models.WorkItem
	parent *flatNode
}

// CreateWorkTree persists a root item, its nested children, intra-tree
// dependencies and initial notes in one transaction. Any validation
// failure leaves the store untouched.
func (s *Service) CreateWorkTree(ctx context.Context, spec *TreeSpec) (*CreatedTree, error) {
	cfg := s.engine.Loader().Config()

	flat, err := s.materialize(cfg, &spec.Root, nil, 0)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*models.WorkItem)
	for _, node := range flat {
		if node.spec.Key == "" {
			continue
		}
		if _, dup := byKey[node.spec.Key]; dup {
			return nil, models.NewValidationError("duplicate node key %q in tree", node.spec.Key)
		}
		byKey[node.spec.Key] = node.item
	}

	deps, blocking, err := resolveDependencies(spec.Dependencies, byKey)
	if err != nil {
		return nil, err
	}

	notes, err := buildNotes(flat)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(ctx, func(tx *badgerdb.Txn) error {
		for _, node := range flat {
			if err := s.store.Items().TxInsert(tx, node.item); err != nil {
				return err
			}
		}
		for _, note := range notes {
			if err := s.store.Notes().TxUpsert(tx, note); err != nil {
				return err
			}
		}
		for _, dep := range deps {
			// Endpoints outside the tree must exist.
			_, fromNew := findItem(flat, dep.FromID)
			_, toNew := findItem(flat, dep.ToID)
			if !fromNew {
				if _, err := s.store.Items().TxGet(tx, dep.FromID); err != nil {
					return err
				}
			}
			if !toNew {
				if _, err := s.store.Items().TxGet(tx, dep.ToID); err != nil {
					return err
				}
			}
			// Any edge touching an existing item can close a cycle through
			// edges already in the store; the declared edges feed in as
			// pending adjacency so mixed stored/in-tree cycles surface too.
			if !fromNew || !toNew {
				cycle, err := s.graph.TxWouldIntroduceDependencyCycle(tx, dep.FromID, dep.ToID, dep.Type, blocking)
				if err != nil {
					return err
				}
				if cycle != nil {
					return models.NewConflictError("dependency would introduce a cycle", map[string]any{"cycle": cycle})
				}
			}
			if err := s.store.Dependencies().TxInsert(tx, dep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	root, err := s.describe(ctx, flat, flat[0])
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("root_id", flat[0].item.ID).
		Int("items", len(flat)).
		Int("dependencies", len(deps)).
		Msg("Work tree created")
	return &CreatedTree{
		Root:         *root,
		ItemCount:    len(flat),
		NoteCount:    len(notes),
		Dependencies: deps,
	}, nil
}

// materialize walks the node spec depth-first, validating and building
// WorkItems. The returned slice is in insertion order, root first.
func (s *Service) materialize(cfg *models.WorkflowConfig, spec *NodeSpec, parent *flatNode, depth int) ([]*flatNode, error) {
	if depth > models.MaxItemDepth {
		return nil, models.NewValidationError("tree exceeds maximum depth %d at %q", models.MaxItemDepth, spec.Title)
	}
	priority, err := models.ParsePriority(spec.Priority)
	if err != nil {
		return nil, models.NewValidationError("node %q: %v", spec.Title, err)
	}

	tags := models.NormalizeTags(spec.Tags)
	status, role, err := workflow.InitialStatus(cfg, (&models.WorkItem{Tags: tags}).TagSet())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &models.WorkItem{
		ID:            common.NewItemID(),
		Depth:         depth,
		Title:         spec.Title,
		Description:   spec.Description,
		Tags:          tags,
		Priority:      priority,
		Status:        status,
		Role:          role,
		RoleChangedAt: now,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
	if parent != nil {
		item.ParentID = parent.item.ID
	}
	if err := item.Validate(); err != nil {
		return nil, models.NewValidationError("node %q: %v", spec.Title, err)
	}

	node := &flatNode{spec: spec, item: item, parent: parent}
	flat := []*flatNode{node}
	for i := range spec.Children {
		children, err := s.materialize(cfg, &spec.Children[i], node, depth+1)
		if err != nil {
			return nil, err
		}
		flat = append(flat, children...)
	}
	return flat, nil
}

// resolveDependencies maps alias keys to item ids, validates types and
// rejects blocking cycles among the declared edges. It also returns the
// normalized blocking adjacency for the stored-graph check at insert time.
func resolveDependencies(specs []DependencySpec, byKey map[string]*models.WorkItem) ([]*models.Dependency, map[string][]string, error) {
	resolve := func(ref string) string {
		if item, ok := byKey[ref]; ok {
			return item.ID
		}
		return ref
	}

	now := time.Now().UTC()
	deps := make([]*models.Dependency, 0, len(specs))
	seen := make(map[string]bool)
	blocking := make(map[string][]string)
	for _, spec := range specs {
		depType, err := models.ParseDependencyType(spec.Type)
		if err != nil {
			return nil, nil, models.NewValidationError("%v", err)
		}
		dep := &models.Dependency{
			ID:        common.NewDependencyID(),
			FromID:    resolve(spec.From),
			ToID:      resolve(spec.To),
			Type:      depType,
			CreatedAt: now,
		}
		if err := dep.Validate(); err != nil {
			return nil, nil, models.NewValidationError("%v", err)
		}
		key := models.DependencyKey(dep.FromID, dep.ToID, dep.Type)
		if seen[key] {
			return nil, nil, models.NewConflictError("duplicate dependency in tree", map[string]any{
				"from": spec.From, "to": spec.To, "type": spec.Type,
			})
		}
		seen[key] = true
		if blocker, blocked, ok := dep.BlockerEdge(); ok {
			blocking[blocker] = append(blocking[blocker], blocked)
		}
		deps = append(deps, dep)
	}

	if cycle := findCycle(blocking); cycle != nil {
		return nil, nil, models.NewConflictError("dependencies would introduce a cycle", map[string]any{"cycle": cycle})
	}
	return deps, blocking, nil
}

func findItem(flat []*flatNode, id string) (*models.WorkItem, bool) {
	for _, node := range flat {
		if node.item.ID == id {
			return node.item, true
		}
	}
	return nil, false
}

// findCycle runs a three-color DFS over the normalized blocking edges and
// returns one cycle path when present.
func findCycle(edges map[string][]string) []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string

	var visit func(node string) []string
	visit = func(node string) []string {
		color[node] = grey
		stack = append(stack, node)
		for _, next := range edges[node] {
			switch color[next] {
			case grey:
				for i, n := range stack {
					if n == next {
						return append(append([]string{}, stack[i:]...), next)
					}
				}
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for node := range edges {
		if color[node] == white {
			if cycle := visit(node); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func buildNotes(flat []*flatNode) ([]*models.Note, error) {
	now := time.Now().UTC()
	var notes []*models.Note
	for _, node := range flat {
		seen := make(map[string]bool)
		for _, spec := range node.spec.Notes {
			phase, err := models.ParseRole(spec.Phase)
			if err != nil {
				return nil, models.NewValidationError("note %q on %q: %v", spec.Key, node.spec.Title, err)
			}
			note := &models.Note{
				ID:         common.NewNoteID(),
				ItemID:     node.item.ID,
				Key:        spec.Key,
				Phase:      phase,
				Body:       spec.Body,
				CreatedAt:  now,
				ModifiedAt: now,
			}
			if err := note.Validate(); err != nil {
				return nil, models.NewValidationError("note on %q: %v", node.spec.Title, err)
			}
			if seen[spec.Key] {
				return nil, models.NewValidationError("duplicate note key %q on node %q", spec.Key, node.spec.Title)
			}
			seen[spec.Key] = true
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// describe rebuilds the nested result structure with expected notes.
func (s *Service) describe(ctx context.Context, flat []*flatNode, node *flatNode) (*CreatedNode, error) {
	expected, err := s.schemas.ExpectedNotes(ctx, node.item)
	if err != nil {
		return nil, err
	}
	out := &CreatedNode{
		Item:          node.item,
		Key:           node.spec.Key,
		ExpectedNotes: expected,
	}
	for _, candidate := range flat {
		if candidate.parent != node {
			continue
		}
		child, err := s.describe(ctx, flat, candidate)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, *child)
	}
	return out, nil
}

// CompleteTree applies the trigger to every item of the subtree bottom-up
// in blocking-dependency order, each in its own transaction. Items already
// terminal when their turn comes are skipped, which absorbs parents
// completed early by cascades.
func (s *Service) CompleteTree(ctx context.Context, rootID string, trigger models.Trigger, actor string) (*TreeCompletion, error) {
	if trigger != models.TriggerComplete && trigger != models.TriggerCancel {
		return nil, models.NewValidationError("complete_tree accepts triggers complete or cancel, got %q", trigger)
	}
	root, err := s.store.Items().Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	descendants, err := s.graph.Descendants(ctx, rootID, 0)
	if err != nil {
		return nil, err
	}

	ordered, err := s.completionOrder(ctx, append(descendants, root))
	if err != nil {
		return nil, err
	}

	completion := &TreeCompletion{RootID: rootID}
	for _, planned := range ordered {
		// Cascades from earlier items may have moved this one already.
		current, err := s.store.Items().Get(ctx, planned.ID)
		if err != nil {
			return nil, err
		}
		result := CompletionResult{ItemID: current.ID, Title: current.Title}
		if current.Role == models.RoleTerminal {
			result.Ok = true
			result.Skipped = true
			completion.Skipped++
			completion.Results = append(completion.Results, result)
			continue
		}

		applied, err := s.engine.Advance(ctx, current.ID, trigger, actor)
		if err != nil {
			result.Ok = false
			result.Error = models.AsToolError(err)
			completion.Failed++
		} else {
			result.Ok = true
			result.Transition = applied
			completion.Succeeded++
		}
		completion.Results = append(completion.Results, result)
	}

	s.logger.Info().
		Str("root_id", rootID).
		Str("trigger", string(trigger)).
		Int("succeeded", completion.Succeeded).
		Int("failed", completion.Failed).
		Int("skipped", completion.Skipped).
		Msg("Tree completion finished")
	return completion, nil
}

// completionOrder sorts subtree members deepest-first, refined into
// topological order over normalized blocking edges between members so
// blockers complete before the items they block.
func (s *Service) completionOrder(ctx context.Context, members []*models.WorkItem) ([]*models.WorkItem, error) {
	inTree := make(map[string]*models.WorkItem, len(members))
	for _, m := range members {
		inTree[m.ID] = m
	}

	// indegree counts unresolved in-tree blockers per member.
	indegree := make(map[string]int, len(members))
	blocks := make(map[string][]string)
	for _, m := range members {
		indegree[m.ID] += 0
		edges, err := s.store.Dependencies().GetTouching(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			blocker, blocked, ok := edge.BlockerEdge()
			if !ok || blocker != m.ID {
				continue
			}
			if _, in := inTree[blocked]; !in {
				continue
			}
			blocks[blocker] = append(blocks[blocker], blocked)
			indegree[blocked]++
		}
	}

	var ordered []*models.WorkItem
	for len(ordered) < len(members) {
		// Pick the deepest zero-indegree member for bottom-up order;
		// settle ties by title for determinism.
		var pick *models.WorkItem
		for id, deg := range indegree {
			if deg != 0 {
				continue
			}
			candidate := inTree[id]
			if pick == nil || candidate.Depth > pick.Depth ||
				(candidate.Depth == pick.Depth && candidate.Title < pick.Title) {
				pick = candidate
			}
		}
		if pick == nil {
			// Cycle among stored edges; should be unreachable given the
			// write-time cycle check.
			var remaining []string
			for id, deg := range indegree {
				if deg >= 0 {
					remaining = append(remaining, id)
				}
			}
			return nil, models.NewConflictError("dependency cycle in subtree", map[string]any{"items": remaining})
		}

		ordered = append(ordered, pick)
		for _, blocked := range blocks[pick.ID] {
			indegree[blocked]--
		}
		delete(indegree, pick.ID)
	}
	return ordered, nil
}
