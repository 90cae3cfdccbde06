package closes

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// stage is a single step of our pipeline. A stage runs once all of the stages
// it depends on have completed, and may run concurrently with any other stage
// that is ready at the same time.
type stage struct {
	name Stage
	deps []Stage
	run  func(ctx context.Context) error
}

// runStages runs a set of stages in dependency order. Stages that become
// ready together run concurrently in an errgroup, and we wait for all of them
// before starting the next set. The first stage to fail cancels its siblings
// and no further stages are started. Stage failures are returned as a
// *StageError.
func runStages(ctx context.Context, stages []*stage) error {
	done := make(map[Stage]bool, len(stages))

	for len(done) < len(stages) {
		ready := readyStages(stages, done)
		if len(ready) == 0 {
			return errStageCycle
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, s := range ready {
			group.Go(func() error {
				log.Tracef("Running stage: %v", s.name)

				if err := s.run(groupCtx); err != nil {
					return newStageError(s.name, nil, err)
				}

				return nil
			})
		}

		if err := group.Wait(); err != nil {
			if isCancelled(err) {
				log.Debugf("Pipeline cancelled: %v", err)
			} else {
				log.Errorf("Pipeline failed: %v", err)
			}

			return err
		}

		for _, s := range ready {
			done[s.name] = true
		}
	}

	return nil
}

// readyStages returns the stages that have not run yet, but have all of
// their dependencies completed.
func readyStages(stages []*stage, done map[Stage]bool) []*stage {
	var ready []*stage

	for _, s := range stages {
		if done[s.name] {
			continue
		}

		depsDone := true
		for _, dep := range s.deps {
			if !done[dep] {
				depsDone = false
				break
			}
		}

		if depsDone {
			ready = append(ready, s)
		}
	}

	return ready
}
