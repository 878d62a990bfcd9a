// Package service ties the task registry, evidence recorder, and executor
// into the async task lifecycle exposed by the HTTP API.
package service

import (
	"sync"

	"github.com/xiaot623/deskdriver/config"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/registry"
)

type Service struct {
	config   *config.Config
	registry *registry.Registry
	recorder *evidence.Recorder
	exec     *executor.Executor

	running sync.WaitGroup
}

func New(cfg *config.Config, reg *registry.Registry, rec *evidence.Recorder, exec *executor.Executor) *Service {
	return &Service{
		config:   cfg,
		registry: reg,
		recorder: rec,
		exec:     exec,
	}
}

// Wait blocks until every task launched by this service has finished.
// Used on shutdown so evidence for in-flight runs is flushed.
func (s *Service) Wait() {
	s.running.Wait()
}
