package bus

import (
	"fmt"
	"strings"

	"github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/logger"
)

// Config selects a bus implementation.
type Config struct {
	Type         string
	KafkaBrokers string
	KafkaGroup   string
}

// New creates a Bus based on the configuration.
func New(cfg Config, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		group := cfg.KafkaGroup
		if group == "" {
			group = "rageval"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
		}, log)

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}
