package topic

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// Registry is the process wide set of provisioned topics. It is shared by
// reference between every producer that needs a topic to exist, and issues at
// most one create call per name no matter how many callers race for it.
type Registry struct {
	admin  kafka.Admin
	config Config
	logger logger.Logger

	mu          sync.Mutex
	provisioned map[string]Spec

	calls singleflight.Group
}

func NewRegistry(admin kafka.Admin, opts ...Option) *Registry {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Registry{
		admin:       admin,
		config:      config,
		logger:      config.Logger.With("component", "topic-registry"),
		provisioned: make(map[string]Spec),
	}
}

// EnsureProvisioned makes sure spec.Name exists on the broker. Concurrent
// callers for the same name share one in-flight create call. A topic that
// already exists counts as provisioned. Any other failure is returned as a
// *ProvisionError and the name stays unprovisioned so a later call retries.
//
// ctx only bounds how long this caller waits.
func (r *Registry) EnsureProvisioned(ctx context.Context, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	if r.lookup(spec) {
		return nil
	}

	ch := r.calls.DoChan(
		spec.Name, func() (any, error) {
			return nil, r.provision(spec)
		},
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (r *Registry) lookup(spec Spec) bool {
	r.mu.Lock()
	existing, ok := r.provisioned[spec.Name]
	r.mu.Unlock()

	if ok && (existing.Partitions != spec.Partitions || existing.Replicas != spec.Replicas) {
		r.logger.Warn(
			"Topic already provisioned with different settings, keeping original",
			"topic", spec.Name,
			"partitions", existing.Partitions,
			"replicas", existing.Replicas,
			"requested_partitions", spec.Partitions,
			"requested_replicas", spec.Replicas,
		)
	}

	return ok
}

// provision runs once per in-flight call. The provisioned set is checked
// again because a call for the same name may have completed between lookup
// and DoChan.
func (r *Registry) provision(spec Spec) error {
	r.mu.Lock()
	_, done := r.provisioned[spec.Name]
	r.mu.Unlock()
	if done {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.CreateTimeout)
	defer cancel()

	err := r.admin.CreateTopic(ctx, spec.TopicConfig())

	status := otel.ProvisionCreated
	switch {
	case err == nil:
		r.logger.Info("Topic created", "topic", spec.Name, "partitions", spec.Partitions, "replicas", spec.Replicas)
	case kafka.IsTopicAlreadyExists(err):
		status = otel.ProvisionExisted
		r.logger.Info("Topic already exists", "topic", spec.Name)
	default:
		r.config.Telemetry.Provisions.Add(
			ctx, 1, metric.WithAttributes(otel.AttrProvisionStatus.String(otel.ProvisionFailed)),
		)
		r.logger.Error("Failed to create topic", "topic", spec.Name, "error", err)
		return &ProvisionError{Topic: spec.Name, Cause: err}
	}

	r.config.Telemetry.Provisions.Add(ctx, 1, metric.WithAttributes(otel.AttrProvisionStatus.String(status)))

	r.mu.Lock()
	r.provisioned[spec.Name] = spec
	r.mu.Unlock()

	return nil
}

func (r *Registry) Provisioned(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.provisioned[name]
	return ok
}

// Names returns the provisioned topic names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.provisioned))
}
