package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Job is a task run once per cron cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order, unique by name.
type Registry struct {
	jobs  []Job
	index map[string]Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{index: map[string]Job{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	switch _, exists := r.index[name]; {
	case strings.TrimSpace(name) == "":
		return errors.New("cron job name is required")
	case exists:
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.index[name] = job
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.index[name]
	return job, ok
}

// Jobs returns a copy of the jobs in registration order.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}
