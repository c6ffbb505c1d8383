package odl

import (
	"go.uber.org/zap"

	"github.com/pkg/errors"

	"github.com/odl-go/circulation-service/circulation/internal/model"
)

// ClientConstructor builds a StatusClient for one collection's settings.
type ClientConstructor func(cfg Config, log *zap.Logger) StatusClient

// Registry maps a collection's protocol tag to a status client
// implementation. It is consulted once when a collection is configured, not
// per call.
type Registry struct {
	constructors map[model.Protocol]ClientConstructor
}

func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[model.Protocol]ClientConstructor)}
	// Both ODL 1.x and OPDS2+ODL collections speak the same License Status
	// Document protocol once the feed is imported.
	standard := func(cfg Config, log *zap.Logger) StatusClient { return NewClient(cfg, log) }
	r.Register(model.ProtocolODL, standard)
	r.Register(model.ProtocolODL2, standard)
	return r
}

func (r *Registry) Register(p model.Protocol, ctor ClientConstructor) {
	r.constructors[p] = ctor
}

// Resolve builds the status client for a collection's protocol.
func (r *Registry) Resolve(p model.Protocol, cfg Config, log *zap.Logger) (StatusClient, error) {
	ctor, ok := r.constructors[p]
	if !ok {
		return nil, errors.Errorf("unknown distributor protocol %q", p)
	}
	return ctor(cfg, log), nil
}
