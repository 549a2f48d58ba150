// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"sync"

	"github.com/Thermoquad/servolink/pkg/axis"
)

// ErrCoordinatorClosed is returned by RunPhase after Close
var ErrCoordinatorClosed = errors.New("coordinator closed")

// PhaseFunc is one unit of per-axis work within a phase
type PhaseFunc func(i int, a *axis.Axis) error

type phaseJob struct {
	fn      PhaseFunc
	results chan<- phaseResult
}

type phaseResult struct {
	index int
	err   error
}

// Coordinator keeps one worker goroutine per axis. Each axis and its
// channel are only ever touched by that worker, and RunPhase returns only
// after every worker has finished, so phases never overlap.
type Coordinator struct {
	axes []*axis.Axis
	jobs []chan phaseJob
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewCoordinator starts a worker for each axis
func NewCoordinator(axes []*axis.Axis) *Coordinator {
	c := &Coordinator{
		axes: axes,
		jobs: make([]chan phaseJob, len(axes)),
	}
	for i := range axes {
		c.jobs[i] = make(chan phaseJob)
		c.wg.Add(1)
		go c.worker(i)
	}
	return c
}

func (c *Coordinator) worker(i int) {
	defer c.wg.Done()
	a := c.axes[i]
	for job := range c.jobs[i] {
		job.results <- phaseResult{index: i, err: job.fn(i, a)}
	}
}

// Axes returns the coordinated axes in order
func (c *Coordinator) Axes() []*axis.Axis {
	return c.axes
}

// RunPhase runs fn on every axis in parallel and waits for all of them.
// The returned slice holds each axis's error at its index.
func (c *Coordinator) RunPhase(fn PhaseFunc) ([]error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCoordinatorClosed
	}

	results := make(chan phaseResult, len(c.axes))
	for i := range c.axes {
		c.jobs[i] <- phaseJob{fn: fn, results: results}
	}

	errs := make([]error, len(c.axes))
	for range c.axes {
		r := <-results
		errs[r.index] = r.err
	}
	return errs, nil
}

// Close stops the workers. Axes and their sessions are left open.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, jobs := range c.jobs {
		close(jobs)
	}
	c.wg.Wait()
}
