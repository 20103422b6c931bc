// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/sync/errgroup"
)

// BigBang is the driver of the type-flow analysis. It owns the flows, objects and contexts of one analysis run,
// seeds the root methods and runs the workers until no flow changes.
//
// A BigBang is used once: create it with NewBigBang, add the roots, and call Run.
type BigBang struct {
	universe    *universe.Universe
	opts        config.TypeFlowOptions
	logger      *config.LogGroup
	registry    *Registry
	policy      Policy
	diagnostics *Diagnostics

	arena    flowArena
	worklist *worklist
	methods  sync.Map // *universe.Method -> *MethodTypeFlow
	statics  sync.Map // *universe.Field -> *storeEntry

	roots []*universe.Method

	evaluations atomic.Int64
	clones      atomic.Int64

	ran bool
}

// NewBigBang returns a driver for the analysis of u with the type-flow settings of cfg. The config must have been
// validated (see config.Config.Validate).
func NewBigBang(u *universe.Universe, cfg *config.Config, logger *config.LogGroup) (*BigBang, error) {
	if logger == nil {
		logger = config.NewLogGroup(cfg)
	}
	registry := NewRegistry()
	policy, err := NewPolicy(cfg.TypeFlow, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create analysis policy: %w", err)
	}
	bb := &BigBang{
		universe:    u,
		opts:        cfg.TypeFlow,
		logger:      logger,
		registry:    registry,
		policy:      policy,
		diagnostics: NewDiagnostics(),
		worklist:    newWorklist(),
	}
	bb.arena.limit = cfg.TypeFlow.MaxFlowNodes
	if bb.opts.Workers <= 0 {
		bb.opts.Workers = 1
	}
	return bb, nil
}

// Analyze runs the analysis of u from the roots of the universe
func Analyze(ctx context.Context, u *universe.Universe, cfg *config.Config, logger *config.LogGroup) (*Result,
	error) {
	bb, err := NewBigBang(u, cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, root := range u.Roots {
		bb.AddRootMethod(root)
	}
	return bb.Run(ctx)
}

// Policy returns the analysis policy
func (bb *BigBang) Policy() Policy { return bb.policy }

// Registry returns the registry of objects and contexts
func (bb *BigBang) Registry() *Registry { return bb.registry }

// Diagnostics returns the diagnostics sink. Front-ends can report their own diagnostics to it.
func (bb *BigBang) Diagnostics() *Diagnostics { return bb.diagnostics }

// Universe returns the analyzed universe
func (bb *BigBang) Universe() *universe.Universe { return bb.universe }

// AddRootMethod registers m as an entry point. Adding the same method twice has no effect.
func (bb *BigBang) AddRootMethod(m *universe.Method) {
	for _, r := range bb.roots {
		if r == m {
			return
		}
	}
	bb.roots = append(bb.roots, m)
}

// seedRoots creates the graphs of the roots in the empty context. The parameters of the roots are initialized with
// the summary objects of every concrete subtype of their declared type.
func (bb *BigBang) seedRoots() error {
	for _, m := range bb.roots {
		if m.Abstract {
			bb.logger.Warnf("ignoring abstract root %s", m)
			continue
		}
		g, err := bb.methodTypeFlow(m).addContext(bb, bb.registry.EmptyContext())
		if err != nil {
			return err
		}
		for i, t := range m.ParamTypes {
			if t == nil {
				continue
			}
			var objs []*Object
			for _, s := range bb.universe.Subtypes(t) {
				if !s.Abstract {
					objs = append(objs, bb.registry.Summary(s))
				}
			}
			bb.addState(g.Param(i), NewTypeState(objs...))
		}
	}
	return nil
}

// Run computes the fixpoint. It returns a fatal error when a budget is exceeded or an invariant is broken, and
// ctx.Err() if ctx is cancelled.
func (bb *BigBang) Run(ctx context.Context) (*Result, error) {
	if bb.ran {
		return nil, errors.New("analysis already ran")
	}
	bb.ran = true
	if len(bb.roots) == 0 {
		return nil, ErrNoRoots
	}
	start := time.Now()
	bb.logger.Infof("Starting type-flow analysis (%s, %d roots, %d workers)",
		bb.policy.Name(), len(bb.roots), bb.opts.Workers)

	if timeout := bb.opts.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := bb.seedRoots(); err != nil {
		return nil, err
	}
	if err := bb.closure(ctx); err != nil {
		bb.logger.Errorf("type-flow analysis aborted after %.2fs: %v", time.Since(start).Seconds(), err)
		return nil, err
	}

	res := newResult(bb, time.Since(start))
	bb.logger.Infof("Type-flow analysis terminated in %.2fs: %d reachable methods, %d clones, %d objects, "+
		"%d flows, %d evaluations", res.stats.Duration.Seconds(), res.stats.ReachableMethods, res.stats.Clones,
		res.stats.Objects, res.stats.Flows, res.stats.Evaluations)
	return res, nil
}

// closure runs the workers until the worklist is empty and no flow is being processed
func (bb *BigBang) closure(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		bb.worklist.close()
	}()
	for i := 0; i < bb.opts.Workers; i++ {
		eg.Go(func() error { return bb.work(gctx) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if bb.worklist.finished() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &FatalError{Kind: TimeBudget, Node: -1,
				Detail: fmt.Sprintf("no fixpoint after %s (%d flows queued)",
					bb.opts.TimeoutDuration(), bb.worklist.size())}
		}
		return err
	}
	return fmt.Errorf("workers stopped before the fixpoint")
}

func (bb *BigBang) work(ctx context.Context) error {
	for ctx.Err() == nil {
		f, ok := bb.worklist.pop()
		if !ok {
			return nil
		}
		f.sched.Store(flowRunning)
		err := bb.process(f)
		if !f.sched.CompareAndSwap(flowRunning, flowIdle) {
			// the state changed while f was processed
			f.sched.Store(flowQueued)
			bb.worklist.push(f)
		}
		bb.worklist.done()
		if err != nil {
			return err
		}
	}
	return nil
}
