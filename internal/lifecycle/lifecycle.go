// Package lifecycle sequences process bootstrap and shutdown into an
// explicit ordered list of named steps (spec §4.9), generalized from
// cmd/relayfile/main.go's flat, explicit wiring function
// (buildStorageBackendsFromEnv's sequential "if err != nil return" chain)
// into a list that continues past per-step shutdown failures instead of
// stopping at the first one.
package lifecycle

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Step is one bootstrap/shutdown unit: store client, KV client, remote
// client, lock service, reconciler, worker pool, ingress listener (spec
// §4.9's exact ordering).
type Step struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// DefaultStepTimeout bounds each individual Start/Stop call so one stuck
// step cannot hang the whole sequence indefinitely.
const DefaultStepTimeout = 10 * time.Second

// Sequence runs an ordered list of Steps and reverses the order on Stop.
type Sequence struct {
	steps       []Step
	started     []Step // steps whose Start succeeded, in start order
	stepTimeout time.Duration
	log         *logrus.Entry
}

// New returns a Sequence over steps, run in the given order.
func New(steps []Step, logger *logrus.Logger) *Sequence {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sequence{
		steps:       steps,
		stepTimeout: DefaultStepTimeout,
		log:         logrus.NewEntry(logger).WithField("component", "lifecycle"),
	}
}

// Start runs each step's Start function in order. On the first failure it
// stops immediately (spec §4.9 names bootstrap as sequential; only
// shutdown is required to continue past failures) and returns that error
// after attempting to Stop whatever already started.
func (s *Sequence) Start(ctx context.Context) error {
	for _, step := range s.steps {
		stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		err := step.Start(stepCtx)
		cancel()
		if err != nil {
			s.log.WithField("step", step.Name).WithError(err).Error("bootstrap step failed")
			s.Stop(ctx)
			return err
		}
		s.log.WithField("step", step.Name).Info("bootstrap step started")
		s.started = append(s.started, step)
	}
	return nil
}

// Stop runs Stop for every started step in reverse order, aggregating
// failures with go-multierror so a stuck step does not prevent the rest
// from also being asked to close (spec §4.9: "continue past failures to
// ensure no resource is leaked").
func (s *Sequence) Stop(ctx context.Context) error {
	var result *multierror.Error
	for i := len(s.started) - 1; i >= 0; i-- {
		step := s.started[i]
		if step.Stop == nil {
			continue
		}
		stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		err := step.Stop(stepCtx)
		cancel()
		if err != nil {
			s.log.WithField("step", step.Name).WithError(err).Warn("shutdown step failed")
			result = multierror.Append(result, err)
			continue
		}
		s.log.WithField("step", step.Name).Info("shutdown step completed")
	}
	s.started = nil
	if result == nil {
		return nil
	}
	return result
}
