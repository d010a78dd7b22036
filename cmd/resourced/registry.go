package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/arclabs/resourcefsm/internal/corelog"
	"github.com/arclabs/resourcefsm/pkg/dispatch"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// Registry holds every LocalizedResource the gateway has created,
// keyed by its own ID, guarded by a mutex since Create/Get happen
// concurrently from request-handling goroutines.
type Registry struct {
	topology   *resource.Topology
	opts       []resource.ResourceOption
	dispatcher *dispatch.NatsDispatcher
	ctx        context.Context
	logger     corelog.Logger

	mu        sync.RWMutex
	resources map[string]*resource.LocalizedResource
}

// NewRegistry returns an empty registry. Every resource it creates is
// instantiated against topology with the given construction options
// (typically a rejection observer). When dispatcher is non-nil, every
// created resource also gets its own NATS subscription, drained on a
// dedicated goroutine for as long as ctx stays live, so events
// published to that resource's subject from outside the gateway (by a
// transition body avoiding re-entrancy, or by another process) still
// reach it.
func NewRegistry(ctx context.Context, topology *resource.Topology, dispatcher *dispatch.NatsDispatcher, logger corelog.Logger, opts ...resource.ResourceOption) *Registry {
	return &Registry{
		topology:   topology,
		opts:       opts,
		dispatcher: dispatcher,
		ctx:        ctx,
		logger:     logger,
		resources:  make(map[string]*resource.LocalizedResource),
	}
}

// Create constructs a new LocalizedResource starting in INIT and
// returns it.
func (r *Registry) Create() *resource.LocalizedResource {
	res := resource.New(r.topology, nil, r.opts...)
	r.mu.Lock()
	r.resources[res.ID] = res
	r.mu.Unlock()

	if r.dispatcher != nil {
		go func() {
			if err := r.dispatcher.Subscribe(r.ctx, res.ID, res); err != nil && err != context.Canceled {
				r.logger.Errorf("resourced: NATS subscription for %s stopped: %v", res.ID, err)
			}
		}()
	}

	return res
}

// Get returns the resource with the given ID, or an error if unknown.
func (r *Registry) Get(id string) (*resource.LocalizedResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, fmt.Errorf("resourced: no such resource %q", id)
	}
	return res, nil
}
