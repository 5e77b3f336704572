package weave

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Steering-facing engine mutators. All of these run with the scheduler
// suspended inside a PauseHandler call; they are not safe for concurrent
// use from other goroutines.

// ReleaseCheckpoint marks a checkpoint node completed so the scheduler can
// advance past it. A loop whose back edge leaves the checkpoint re-arms
// here.
func (e *Engine) ReleaseCheckpoint(id int) error {
	n := e.state.Graph.Node(id)
	if n == nil {
		return ErrNodeNotFound
	}
	e.applyOutput(id, &NodeOutput{Success: true, Result: "released"})
	e.followBackEdges([]int{id})
	return nil
}

// JumpTo resets the selected node and every node reachable from it to
// pending, clearing their outputs, and moves execution there. Unrelated
// branches keep their state.
func (e *Engine) JumpTo(id int) error {
	if e.state.Graph.Node(id) == nil {
		return ErrNodeNotFound
	}
	e.resetRegion(id)
	return nil
}

// RepeatLast resets the most recently completed node to pending so it is
// re-queued on resume.
func (e *Engine) RepeatLast() (int, error) {
	id := e.lastCompleted
	if id < 0 || e.state.Graph.Node(id) == nil || e.state.Graph.Node(id).Status != StatusCompleted {
		id = e.state.LastCompleted()
	}
	if id < 0 {
		return -1, ErrNothingToReset
	}
	e.resetNode(id)
	return id, nil
}

// RetryNode re-queues a failed node.
func (e *Engine) RetryNode(id int) error {
	if e.state.Graph.Node(id) == nil {
		return ErrNodeNotFound
	}
	e.resetNode(id)
	return nil
}

// SkipNode marks a failed node skipped so the rest of the graph can run.
func (e *Engine) SkipNode(id int) error {
	n := e.state.Graph.Node(id)
	if n == nil {
		return ErrNodeNotFound
	}
	n.Status = StatusSkipped
	e.publish(Event{Type: EventNodeSkipped, NodeID: id, Step: n.DisplayName()})
	e.render()
	return nil
}

// ReplaceGraph swaps in a recompiled graph and resets all execution state.
// The caller is responsible for having validated the new graph; on compile
// failure the original graph is simply never replaced.
func (e *Engine) ReplaceGraph(g *Graph) {
	e.state.Graph = g
	e.state.ResetAll()
	e.retries = make(map[int]int)
	e.accepted = make(map[int]bool)
	e.notTaken = make(map[int]bool)
	e.lastCompleted = -1
	e.publish(Event{Type: EventGraphReplaced})
	e.render()
}

// TakeSnapshot copies the run state so a destructive command can be undone.
func (e *Engine) TakeSnapshot() *Snapshot {
	return e.state.Snapshot()
}

// RestoreSnapshot rewinds the run state to a previous snapshot.
func (e *Engine) RestoreSnapshot(snap *Snapshot) {
	e.state.Restore(snap)
	e.retries = make(map[int]int)
	e.accepted = make(map[int]bool)
	e.notTaken = make(map[int]bool)
	e.lastCompleted = e.state.LastCompleted()
	e.publish(Event{Type: EventGraphReplaced})
	e.render()
}

// InsertDebugNode adds a diagnostic step wired immediately before the given
// position and returns its id. The node still has to be run (see RunNode).
func (e *Engine) InsertDebugNode(beforeID int, instruction string) int {
	n := e.state.Graph.AddNode(&Node{
		Kind:        KindStep,
		StepName:    "diagnostic",
		Instruction: instruction,
		Uses:        ReferencedVariables(instruction),
		Status:      StatusPending,
	})
	e.state.Graph.AddEdge(n.ID, beforeID, "")
	return n.ID
}

// RunNode synchronously executes a single node and applies its output.
// Used by the debug command while the run is paused.
func (e *Engine) RunNode(ctx context.Context, id int) error {
	n := e.state.Graph.Node(id)
	if n == nil {
		return ErrNodeNotFound
	}
	n.Status = StatusExecuting
	e.publish(Event{Type: EventNodeStarted, NodeID: id, Step: n.DisplayName()})
	e.render()
	e.applyOutput(id, e.invoke(ctx, id))
	return nil
}

// ForkBranch describes one alternative approach for the fork command.
type ForkBranch struct {
	StepName    string
	Instruction string
}

// InsertFork wires a new parallel region (entry, one step per branch,
// merge) hanging off the paused position. Returns the branch ids and the
// merge id.
func (e *Engine) InsertFork(atID int, branches []ForkBranch) (branchIDs []int, mergeID int) {
	g := e.state.Graph
	entry := g.AddNode(&Node{Kind: KindParallelEntry, Status: StatusPending})
	g.AddEdge(atID, entry.ID, "")
	for _, b := range branches {
		n := g.AddNode(&Node{
			Kind:        KindStep,
			StepName:    b.StepName,
			Instruction: b.Instruction,
			Uses:        ReferencedVariables(b.Instruction),
			Status:      StatusPending,
		})
		g.AddEdge(entry.ID, n.ID, "")
		branchIDs = append(branchIDs, n.ID)
	}
	merge := g.AddNode(&Node{Kind: KindParallelMerge, Status: StatusPending})
	for _, id := range branchIDs {
		g.AddEdge(id, merge.ID, "")
	}
	return branchIDs, merge.ID
}

// RunFork executes an inserted fork region while the run is paused: the
// entry completes immediately, branches run as a bounded parallel batch,
// and the merge aggregates. Branch failures are recorded for comparison,
// not escalated.
func (e *Engine) RunFork(ctx context.Context, branchIDs []int, mergeID int) {
	if len(branchIDs) == 0 {
		return
	}
	entryID := -1
	for _, edge := range e.state.Graph.Incoming(branchIDs[0]) {
		entryID = edge.From
	}
	if entryID >= 0 {
		e.applyOutput(entryID, &NodeOutput{Success: true})
	}

	sem := make(chan struct{}, e.concurrency)
	results := make(chan batchResult, len(branchIDs))
	var wg sync.WaitGroup
	for _, id := range branchIDs {
		n := e.state.Graph.Node(id)
		n.Status = StatusExecuting
		e.publish(Event{Type: EventNodeStarted, NodeID: id, Step: n.DisplayName()})
	}
	e.render()
	for _, id := range branchIDs {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- batchResult{id: id, out: e.invoke(ctx, id)}
		}(id)
	}
	wg.Wait()
	close(results)
	for res := range results {
		e.applyOutput(res.id, res.out)
		if !res.out.Success {
			e.accepted[res.id] = true
		}
	}
	e.completeMerge(mergeID)
}

// Steering command labels, in menu order.
const (
	cmdContinue = "continue"
	cmdRetry    = "retry"
	cmdSkip     = "skip"
	cmdJump     = "jump"
	cmdRepeat   = "repeat"
	cmdEdit     = "edit"
	cmdView     = "view"
	cmdDebug    = "debug"
	cmdFork     = "fork"
	cmdUndo     = "undo"
	cmdQuit     = "quit"
)

// SteeringOption configures the steering subsystem.
type SteeringOption func(*Steering)

// WithRecompiler supplies the compile function the edit command uses to
// turn replacement syntax into a validated graph.
func WithRecompiler(fn func(text string) (*Graph, error)) SteeringOption {
	return func(s *Steering) {
		s.recompile = fn
	}
}

// WithTemporaryRegistrar supplies a callback that registers step names
// created at runtime (debug, fork) with the agent directory.
func WithTemporaryRegistrar(fn func(name string)) SteeringOption {
	return func(s *Steering) {
		s.registerTemp = fn
	}
}

// WithOutput redirects where view output and summaries are written.
func WithOutput(w io.Writer) SteeringOption {
	return func(s *Steering) {
		s.out = w
	}
}

// WithSteeringLogger overrides the steering logger.
func WithSteeringLogger(l *slog.Logger) SteeringOption {
	return func(s *Steering) {
		s.logger = l
	}
}

// Steering implements the interactive command protocol that redirects a
// paused or failed run. Destructive commands (jump, edit) snapshot the run
// state first so undo can restore it.
type Steering struct {
	prompter     Prompter
	recompile    func(text string) (*Graph, error)
	registerTemp func(name string)
	out          io.Writer
	logger       *slog.Logger
	undo         []*Snapshot
}

// NewSteering creates a steering subsystem around a prompter.
func NewSteering(p Prompter, opts ...SteeringOption) *Steering {
	s := &Steering{
		prompter: p,
		out:      os.Stdout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCheckpoint presents the command menu at a checkpoint pause.
func (s *Steering) OnCheckpoint(ctx context.Context, eng *Engine, nodeID int) (Signal, error) {
	n := eng.State().Graph.Node(nodeID)
	question := fmt.Sprintf("Paused at checkpoint %s. What next?", n.DisplayName())
	commands := []Choice{
		{Label: cmdContinue, Detail: "mark the checkpoint done and resume"},
		{Label: cmdJump, Detail: "move execution to another node"},
		{Label: cmdRepeat, Detail: "re-run the most recently completed node"},
		{Label: cmdEdit, Detail: "replace the workflow with new syntax"},
		{Label: cmdView, Detail: "inspect a node's full output"},
		{Label: cmdDebug, Detail: "insert and run a diagnostic step here"},
		{Label: cmdFork, Detail: "try alternative approaches in parallel"},
		{Label: cmdQuit, Detail: "abort the run"},
	}
	return s.menu(ctx, eng, nodeID, question, commands)
}

// OnFailure presents the recovery menu for a failed node.
func (s *Steering) OnFailure(ctx context.Context, eng *Engine, nodeID int) (Signal, error) {
	n := eng.State().Graph.Node(nodeID)
	out := eng.State().Outputs[nodeID]
	errMsg := ""
	if out != nil {
		errMsg = out.Error
	}
	question := fmt.Sprintf("Node %s failed: %s. What next?", n.DisplayName(), errMsg)
	commands := []Choice{
		{Label: cmdRetry, Detail: "re-queue the failed node"},
		{Label: cmdSkip, Detail: "skip it and keep going"},
		{Label: cmdJump, Detail: "move execution to another node"},
		{Label: cmdRepeat, Detail: "re-run the most recently completed node"},
		{Label: cmdEdit, Detail: "replace the workflow with new syntax"},
		{Label: cmdView, Detail: "inspect a node's full output"},
		{Label: cmdDebug, Detail: "insert and run a diagnostic step here"},
		{Label: cmdFork, Detail: "try alternative approaches in parallel"},
		{Label: cmdQuit, Detail: "abort the run"},
	}
	return s.menu(ctx, eng, nodeID, question, commands)
}

// menu loops until a command resumes or aborts the run. Non-resuming
// commands (view, debug, fork, undo, failed edits) fall back into the menu.
func (s *Steering) menu(ctx context.Context, eng *Engine, nodeID int, question string, commands []Choice) (Signal, error) {
	for {
		options := commands
		if len(s.undo) > 0 {
			options = append(append([]Choice(nil), commands...), Choice{Label: cmdUndo, Detail: "restore the state before the last destructive command"})
		}
		cmd, err := s.prompter.Select(question, options)
		if err != nil {
			return SignalAbort, err
		}

		switch cmd {
		case cmdContinue:
			if err := eng.ReleaseCheckpoint(nodeID); err != nil {
				return SignalAbort, err
			}
			return SignalResume, nil

		case cmdRetry:
			if err := eng.RetryNode(nodeID); err != nil {
				return SignalAbort, err
			}
			return SignalResume, nil

		case cmdSkip:
			if err := eng.SkipNode(nodeID); err != nil {
				return SignalAbort, err
			}
			return SignalResume, nil

		case cmdJump:
			if s.jump(eng) {
				return SignalResume, nil
			}

		case cmdRepeat:
			id, err := eng.RepeatLast()
			if err != nil {
				fmt.Fprintf(s.out, "repeat: %v\n", err)
				continue
			}
			s.logger.Info("repeating node", "node", id)
			return SignalResume, nil

		case cmdEdit:
			if s.edit(eng) {
				return SignalResume, nil
			}

		case cmdView:
			s.view(eng)

		case cmdDebug:
			s.debug(ctx, eng, nodeID)

		case cmdFork:
			s.fork(ctx, eng, nodeID)

		case cmdUndo:
			snap := s.undo[len(s.undo)-1]
			s.undo = s.undo[:len(s.undo)-1]
			eng.RestoreSnapshot(snap)
			fmt.Fprintln(s.out, "restored state from snapshot", snap.ID)

		case cmdQuit:
			ok, err := s.prompter.Confirm("Abort the run?")
			if err != nil {
				return SignalAbort, err
			}
			if ok {
				s.printSummary(eng)
				return SignalAbort, nil
			}
		}
	}
}

// jump lets the operator pick any completed or pending node and resets the
// region from there. Returns true if a jump happened.
func (s *Steering) jump(eng *Engine) bool {
	state := eng.State()
	var options []Choice
	for _, n := range state.Graph.Nodes {
		if n.Status != StatusCompleted && n.Status != StatusPending {
			continue
		}
		if n.Kind == KindParallelEntry || n.Kind == KindParallelMerge {
			continue
		}
		options = append(options, Choice{
			Label:  fmt.Sprintf("#%d %s", n.ID, n.DisplayName()),
			Detail: n.Status.String(),
		})
	}
	if len(options) == 0 {
		fmt.Fprintln(s.out, "jump: no eligible nodes")
		return false
	}
	label, err := s.prompter.Select("Jump to which node?", options)
	if err != nil {
		return false
	}
	id, ok := parseNodeLabel(label)
	if !ok {
		return false
	}
	s.pushSnapshot(eng)
	if err := eng.JumpTo(id); err != nil {
		fmt.Fprintf(s.out, "jump: %v\n", err)
		return false
	}
	s.logger.Info("jumped", "node", id)
	return true
}

// edit collects replacement syntax, recompiles it and swaps the graph. On a
// compile failure the original graph is retained and the error shown.
func (s *Steering) edit(eng *Engine) bool {
	if s.recompile == nil {
		fmt.Fprintln(s.out, "edit: no compiler wired in")
		return false
	}
	text, err := s.prompter.Input("Replacement workflow syntax:")
	if err != nil || strings.TrimSpace(text) == "" {
		return false
	}
	g, err := s.recompile(text)
	if err != nil {
		fmt.Fprintf(s.out, "edit rejected, keeping current workflow:\n%v\n", err)
		return false
	}
	s.pushSnapshot(eng)
	eng.ReplaceGraph(g)
	s.logger.Info("graph replaced by edit", "nodes", len(g.Nodes))
	return true
}

// view prints the full captured output or error of a chosen node. No state
// change.
func (s *Steering) view(eng *Engine) {
	state := eng.State()
	var options []Choice
	for _, n := range state.Graph.Nodes {
		if _, ok := state.Outputs[n.ID]; ok {
			options = append(options, Choice{
				Label:  fmt.Sprintf("#%d %s", n.ID, n.DisplayName()),
				Detail: n.Status.String(),
			})
		}
	}
	if len(options) == 0 {
		fmt.Fprintln(s.out, "view: no node has output yet")
		return
	}
	label, err := s.prompter.Select("View which node's output?", options)
	if err != nil {
		return
	}
	id, ok := parseNodeLabel(label)
	if !ok {
		return
	}
	out := state.Outputs[id]
	n := state.Graph.Node(id)
	fmt.Fprintf(s.out, "--- #%d %s (%s, %s) ---\n", id, n.DisplayName(), n.Status, out.Duration)
	if out.Result != "" {
		fmt.Fprintln(s.out, out.Result)
	}
	if out.Error != "" {
		fmt.Fprintln(s.out, "error:", out.Error)
	}
}

// debug inserts a diagnostic node before the paused position, runs it, and
// leaves the run paused.
func (s *Steering) debug(ctx context.Context, eng *Engine, nodeID int) {
	instruction, err := s.prompter.Input("Diagnostic instruction:")
	if err != nil || strings.TrimSpace(instruction) == "" {
		return
	}
	if s.registerTemp != nil {
		s.registerTemp("diagnostic")
	}
	id := eng.InsertDebugNode(nodeID, instruction)
	if err := eng.RunNode(ctx, id); err != nil {
		fmt.Fprintf(s.out, "debug: %v\n", err)
		return
	}
	out := eng.State().Outputs[id]
	fmt.Fprintf(s.out, "--- diagnostic #%d ---\n%s\n", id, out.Result)
	if out.Error != "" {
		fmt.Fprintln(s.out, "error:", out.Error)
	}
}

// fork collects N alternative approaches, inserts them as a parallel
// region, runs them, and leaves the run paused for comparison.
func (s *Steering) fork(ctx context.Context, eng *Engine, nodeID int) {
	countText, err := s.prompter.Input("How many alternative approaches?")
	if err != nil {
		return
	}
	count, err := strconv.Atoi(strings.TrimSpace(countText))
	if err != nil || count < 1 {
		fmt.Fprintln(s.out, "fork: need a positive number")
		return
	}
	branches := make([]ForkBranch, 0, count)
	for i := 0; i < count; i++ {
		instruction, err := s.prompter.Input(fmt.Sprintf("Approach %d instruction:", i+1))
		if err != nil || strings.TrimSpace(instruction) == "" {
			return
		}
		name := fmt.Sprintf("alternative-%d", i+1)
		if s.registerTemp != nil {
			s.registerTemp(name)
		}
		branches = append(branches, ForkBranch{StepName: name, Instruction: instruction})
	}
	branchIDs, mergeID := eng.InsertFork(nodeID, branches)
	eng.RunFork(ctx, branchIDs, mergeID)
	fmt.Fprintf(s.out, "fork complete: %d alternatives ran, use view to compare\n", len(branchIDs))
}

func (s *Steering) pushSnapshot(eng *Engine) {
	s.undo = append(s.undo, eng.TakeSnapshot())
}

func (s *Steering) printSummary(eng *Engine) {
	state := eng.State()
	counts := state.StatusCounts()
	fmt.Fprintf(s.out, "run %s aborted: %d completed, %d failed, %d skipped, %d pending\n",
		state.RunID,
		counts[StatusCompleted], counts[StatusFailed], counts[StatusSkipped], counts[StatusPending])
}

func parseNodeLabel(label string) (int, bool) {
	if !strings.HasPrefix(label, "#") {
		return 0, false
	}
	fields := strings.Fields(label)
	id, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#"))
	if err != nil {
		return 0, false
	}
	return id, true
}
