// Package updates is the append-only audit pipeline: every executed
// operation records an Update, and every persisted Update is broadcast to
// live subscribers.
package updates

import (
	"time"

	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Pipeline persists updates and fans them out to subscribers.
type Pipeline struct {
	db  *store.DB
	bus *Bus
}

// NewPipeline wires the pipeline over the store.
func NewPipeline(db *store.DB) *Pipeline {
	return &Pipeline{db: db, bus: NewBus()}
}

// Bus exposes the broadcast side for the live-update feed.
func (p *Pipeline) Bus() *Bus { return p.bus }

// Make builds a fresh InProgress update for an operation about to run.
func (p *Pipeline) Make(target types.ResourceTarget, op types.Operation, operator string) *types.Update {
	return &types.Update{
		Target:    target,
		Operation: op,
		Operator:  operator,
		Status:    types.UpdateInProgress,
		StartTS:   time.Now().UTC(),
	}
}

// Add assigns an id, persists the update, and broadcasts it. Returns the
// assigned id.
func (p *Pipeline) Add(u *types.Update) (string, error) {
	id, err := p.db.AddUpdate(u)
	if err != nil {
		return "", err
	}
	p.broadcast(u)
	return id, nil
}

// Save overwrites the persisted update and broadcasts the new state. Used
// after each handler step so the UI sees live progress.
func (p *Pipeline) Save(u *types.Update) error {
	if err := p.db.PutUpdate(u); err != nil {
		return err
	}
	p.broadcast(u)
	return nil
}

// Finalize completes the update (idempotently) and persists the final
// state.
func (p *Pipeline) Finalize(u *types.Update) error {
	u.Finalize()
	return p.Save(u)
}

// broadcast projects the update to its list-item form, joining in the
// operator's username, and publishes it.
func (p *Pipeline) broadcast(u *types.Update) {
	item := types.UpdateListItem{
		ID:        u.ID,
		Target:    u.Target,
		Operation: u.Operation,
		Operator:  u.Operator,
		Status:    u.Status,
		Success:   u.Success,
		StartTS:   u.StartTS,
		Version:   u.Version,
	}
	if user, err := p.db.GetUser(u.Operator); err == nil {
		item.Username = user.Username
	}
	p.bus.Publish(item)
}
