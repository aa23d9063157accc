package preference

import (
	"context"
	"fmt"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/storage"
)

// View is a status view of the CLI.
type View string

const (
	ViewTasks   View = "tasks"
	ViewHistory View = "history"
	ViewStats   View = "stats"
)

// DefaultView is the view used when none was selected before.
const DefaultView = ViewTasks

// Views are all the known views.
var Views = []View{ViewTasks, ViewHistory, ViewStats}

// Validate checks the view is known.
func (v View) Validate() error {
	switch v {
	case ViewTasks, ViewHistory, ViewStats:
		return nil
	}
	return fmt.Errorf("unknown view %q", v)
}

// ActiveViewRepository remembers the last selected view.
type ActiveViewRepository struct {
	state  *storage.JSONState
	logger log.Logger
}

// NewActiveViewRepository returns a new ActiveViewRepository.
func NewActiveViewRepository(state *storage.JSONState, logger log.Logger) (*ActiveViewRepository, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &ActiveViewRepository{
		state:  state,
		logger: logger.WithValues(log.Kv{"svc": "preference.ActiveViewRepository"}),
	}, nil
}

// Get returns the last selected view, DefaultView if there is none or the stored one is unknown.
func (r *ActiveViewRepository) Get(ctx context.Context) View {
	v := storage.Load(ctx, r.state, storage.KeyActiveView, DefaultView)
	if err := v.Validate(); err != nil {
		r.logger.Warningf("Ignoring stored view: %s", err)
		return DefaultView
	}
	return v
}

// Set stores the selected view.
func (r *ActiveViewRepository) Set(ctx context.Context, v View) error {
	if err := v.Validate(); err != nil {
		return err
	}
	r.state.Save(ctx, storage.KeyActiveView, v)
	return nil
}
