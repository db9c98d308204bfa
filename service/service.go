package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusHost = "0.0.0.0"
	StatusPort = 8080
)

// StatusConfig configures the status server
type StatusConfig struct {
	Enabled    bool
	ListenAddr string
	ListenPort int
}

// Config selects the servers to run
type Config struct {
	Status   StatusConfig
	Metrics  opmetrics.CLIConfig
	Registry *prometheus.Registry
}

// Service runs the optional status and metrics servers next to a run
type Service struct {
	log     log.Logger
	cfg     Config
	Status  *StatusServer
	Metrics *httputil.HTTPServer
}

func New(logger log.Logger, cfg Config, progress SnapshotProvider) *Service {
	return &Service{
		log:    logger,
		cfg:    cfg,
		Status: NewStatusServer(logger, progress),
	}
}

// Start starts the enabled servers
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	if s.cfg.Status.Enabled {
		addr := net.JoinHostPort(s.cfg.Status.ListenAddr, strconv.Itoa(s.cfg.Status.ListenPort))
		if err := s.Status.Start(addr); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		s.log.Info("started status server", "addr", s.Status.Addr())
	}

	if s.cfg.Metrics.Enabled {
		if s.cfg.Registry == nil {
			return errors.New("metrics enabled without a registry")
		}
		srv, err := opmetrics.StartServer(s.cfg.Registry, s.cfg.Metrics.ListenAddr, s.cfg.Metrics.ListenPort)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		s.Metrics = srv
		s.log.Info("started metrics server", "addr", srv.Addr())
	}

	s.log.Info("service started")
	return nil
}

// Shutdown stops whatever was started
func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	var result error
	if err := s.Status.Shutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to stop status server: %w", err))
	}
	s.log.Info("status stopped")

	if s.Metrics != nil {
		if err := s.Metrics.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
	return result
}
