package execute

import (
	"context"
	"fmt"
	"sync"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// runProcedure runs a procedure's stages in order. Each item is a full
// child execution with its own Update and its own action lock; a failed
// stage aborts the remaining stages.
func (e *Executor) runProcedure(ctx context.Context, procedureID string, u *types.Update) {
	proc, err := e.db.Procedures.Get(procedureID)
	if err != nil {
		u.PushError("resolve procedure", err)
		return
	}
	operator, err := e.db.GetUser(u.Operator)
	if err != nil {
		u.PushError("resolve operator", err)
		return
	}

	for i, stage := range proc.Config.Stages {
		name := stage.Name
		if name == "" {
			name = fmt.Sprintf("stage %d", i+1)
		}
		if !e.runStage(ctx, operator, stage, name, u) {
			u.PushError(name, oops.New(oops.Internal, "stage failed, skipping %d remaining", len(proc.Config.Stages)-i-1))
			return
		}
		e.save(u, nil)
	}
}

// runStage runs one stage's enabled items, sequentially or in parallel.
// Returns false when any item failed.
func (e *Executor) runStage(ctx context.Context, operator *types.User, stage types.ProcedureStage, name string, u *types.Update) bool {
	var items []types.Execution
	for _, item := range stage.Items {
		if item.Enabled {
			items = append(items, item.Execution)
		}
	}
	if len(items) == 0 {
		u.PushLog(types.SimpleLog(name, "no enabled executions"))
		return true
	}

	if stage.Kind == types.StageParallel {
		results := make([]types.Log, len(items))
		var wg sync.WaitGroup
		for i, exec := range items {
			wg.Add(1)
			go func(i int, exec types.Execution) {
				defer wg.Done()
				results[i] = e.runChild(ctx, operator, exec, name)
			}(i, exec)
		}
		wg.Wait()
		ok := true
		for _, log := range results {
			u.PushLog(log)
			ok = ok && log.Success
		}
		return ok
	}

	for _, exec := range items {
		log := e.runChild(ctx, operator, exec, name)
		u.PushLog(log)
		if !log.Success {
			return false
		}
	}
	return true
}

// runChild dispatches one item as a fresh execution and summarizes its
// outcome as a log line on the parent.
func (e *Executor) runChild(ctx context.Context, operator *types.User, exec types.Execution, stage string) types.Log {
	child, err := e.Execute(ctx, operator, exec)
	if err != nil {
		return types.ErrorLog(stage, fmt.Errorf("%s: %w", exec.Type, err))
	}
	log := types.SimpleLog(stage, fmt.Sprintf("%s on %s: update %s", exec.Type, child.Target, child.ID))
	log.Success = child.Success
	if !child.Success {
		log.Stderr = fmt.Sprintf("%s failed, see update %s", exec.Type, child.ID)
	}
	return log
}
