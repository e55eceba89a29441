package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sagaStep is one forward write and the action that undoes it. undo may be
// nil for a step with nothing to compensate.
type sagaStep struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the steps that already
// succeeded are compensated in reverse order and the step's error is
// returned joined with any compensation failures.
type saga struct {
	name  string
	log   zerolog.Logger
	steps []sagaStep
}

func newSaga(name string, log zerolog.Logger, steps ...sagaStep) *saga {
	return &saga{name: name, log: log, steps: steps}
}

func (s *saga) run(ctx context.Context) error {
	log := s.log.With().Str("saga", s.name).Str("run_id", uuid.NewString()).Logger()

	for i, step := range s.steps {
		if err := step.do(ctx); err != nil {
			log.Error().Err(err).Str("step", step.name).Msg("saga step failed")
			stepErr := fmt.Errorf("%s: %s: %w", s.name, step.name, err)
			// compensations must finish even if the caller gave up
			return errors.Join(stepErr, s.compensate(context.WithoutCancel(ctx), log, i))
		}
		log.Debug().Str("step", step.name).Msg("saga step done")
	}
	return nil
}

// compensate undoes steps [0, failed) in reverse.
func (s *saga) compensate(ctx context.Context, log zerolog.Logger, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.undo == nil {
			continue
		}
		if err := step.undo(ctx); err != nil {
			log.Error().Err(err).Str("step", step.name).Msg("saga compensation failed")
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.name, err))
			continue
		}
		log.Debug().Str("step", step.name).Msg("saga step compensated")
	}
	return errors.Join(errs...)
}
