package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yacall/internal/adapter/driven/auth"
	"github.com/Wyydra/yacall/internal/adapter/driven/call/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/events/kafka"
	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	profiles "github.com/Wyydra/yacall/internal/adapter/driven/profile/memory"
	handler "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/Wyydra/yacall/internal/logging"
	"github.com/Wyydra/yacall/internal/metrics"
	"github.com/Wyydra/yacall/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled() {
		shutdownTracing, err = telemetry.Init(ctx, telemetry.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up tracing")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := ws.NewHub(m)
	go hub.Run()
	delivery := ws.NewDelivery(hub, m)

	opts := []service.Option{
		service.WithMetrics(m),
		service.WithProfiles(profiles.NewDirectory(profileList(cfg.Profiles))),
		service.WithTimings(service.Timings{
			LeaveGrace:      cfg.Calls.LeaveGrace,
			DisconnectGrace: cfg.Calls.DisconnectGrace,
		}),
		service.WithPolicies(policies(cfg.Delivery)),
	}

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts = append(opts, service.WithEvents(publisher))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing call events")
	}

	authorizer := auth.NewWhitelist(map[string][]domain.UserID{
		port.PermissionSupervise: userIDs(cfg.Auth.Supervisors),
	})
	callService := service.NewCallService(memory.NewCallStore(), delivery, authorizer, opts...)

	h := handler.NewHandler(callService, hub, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: otelhttp.NewHandler(h.NewRouter(), "yacall"),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := callService.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Pending notifications dropped")
	}
	delivery.Close()
	hub.Stop()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
	log.Info().Msg("Server exited")
}

func policies(d config.Delivery) service.Policies {
	p := service.DefaultPolicies()
	for _, o := range []struct {
		override *config.Policy
		target   *port.DeliveryOptions
	}{
		{d.Ring, &p.Ring},
		{d.Rering, &p.Rering},
		{d.IceCandidate, &p.IceCandidate},
		{d.SDPUpdate, &p.SDPUpdate},
		{d.Members, &p.Members},
		{d.End, &p.End},
	} {
		if o.override != nil {
			*o.target = o.override.Options()
		}
	}
	return p
}

func profileList(in []config.Profile) []domain.Profile {
	out := make([]domain.Profile, 0, len(in))
	for _, p := range in {
		out = append(out, domain.Profile{ID: domain.UserID(p.ID), Label: p.Label, Icon: p.Icon})
	}
	return out
}

func userIDs(in []string) []domain.UserID {
	out := make([]domain.UserID, 0, len(in))
	for _, id := range in {
		out = append(out, domain.UserID(id))
	}
	return out
}
