package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xiaot623/deskdriver/config"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/planner"
	"github.com/xiaot623/deskdriver/internal/policy"
	"github.com/xiaot623/deskdriver/internal/registry"
	"github.com/xiaot623/deskdriver/internal/service"
	transport "github.com/xiaot623/deskdriver/internal/transport/http"
	"github.com/xiaot623/deskdriver/internal/verify"
)

func main() {
	// Load .env and configuration
	_ = godotenv.Load()
	cfg := config.Load()

	log.Printf("Starting desk driver...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Work dir: %s", cfg.WorkDir)

	// Evidence store and recorder
	store, err := evidence.NewStore(cfg.DatabaseURL, cfg.EvidenceDir)
	if err != nil {
		log.Fatalf("Failed to initialize evidence store: %v", err)
	}
	defer store.Close()
	recorder := evidence.NewRecorder(store, cfg.EvidenceQueueSize)
	defer recorder.Close()

	// Safety policy engine with file hot-reload
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pol, err := policy.Load(cfg.SafetyPolicyPath)
	if err != nil {
		log.Fatalf("Failed to load safety policy: %v", err)
	}
	engine, err := policy.NewEngine(ctx, pol)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}
	if err := policy.NewLoader(engine, cfg.SafetyPolicyPath).Watch(ctx); err != nil {
		log.Printf("Policy watch disabled: %v", err)
	}

	// Task registry and executor. The stub desktop keeps the service runnable
	// on hosts without a platform binding.
	reg := registry.New()
	desktop := driver.Stub()
	exec := &executor.Executor{
		Policy:    engine,
		Desktop:   desktop,
		Verifier:  &verify.Verifier{Windows: desktop.Windows},
		Recorder:  recorder,
		Artifacts: store,
		Registry:  reg,
		MaxSteps:  cfg.MaxSteps,
	}

	if cfg.LLMBaseURL != "" {
		exec.Planner = planner.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel,
			time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
		log.Printf("Replanner enabled: %s (%s)", cfg.LLMBaseURL, cfg.LLMModel)
	}

	svc := service.New(cfg, reg, recorder, exec)

	// HTTP server
	server := transport.NewServer(svc, recorder)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down desk driver...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	// Let in-flight tasks finish and flush their evidence.
	svc.Wait()

	log.Println("Desk driver stopped")
}
