package topic

import (
	"errors"
	"fmt"
	"maps"

	"github.com/hugolhafner/go-kcore/kafka"
)

var ErrInvalidSpec = errors.New("invalid topic spec")

// Spec describes a topic to provision. Partitions and Replicas are fixed by
// the first successful provisioning of Name.
type Spec struct {
	Name       string
	Partitions int32
	Replicas   int16

	// Configs are passed through as topic level config entries.
	Configs map[string]*string
}

func (s Spec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	case s.Partitions <= 0:
		return fmt.Errorf("%w: topic %q: partitions must be positive, got %d", ErrInvalidSpec, s.Name, s.Partitions)
	case s.Replicas <= 0:
		return fmt.Errorf("%w: topic %q: replicas must be positive, got %d", ErrInvalidSpec, s.Name, s.Replicas)
	}
	return nil
}

func (s Spec) TopicConfig() kafka.TopicConfig {
	return kafka.TopicConfig{
		Name:              s.Name,
		NumPartitions:     s.Partitions,
		ReplicationFactor: s.Replicas,
		ConfigEntries:     maps.Clone(s.Configs),
	}
}
