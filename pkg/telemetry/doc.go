// Package telemetry provides observability instrumentation for Starlance.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) into a single unit that the mission engine threads
// through its operations.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "starlance"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Component loggers keep diagnostics attributable:
//
//	logger := tel.Logger.NewComponentLogger("catalog")
//	logger.WithTemplate("Cargo Run").Warn("duplicate template name, keeping first")
//
// Key metrics exposed:
//
//   - starlance_triggers_evaluated_total{location}
//   - starlance_spawn_draws_total{result}
//   - starlance_missions_created_total{outcome}
//   - starlance_missions_accepted_total
//   - starlance_missions_failed_load_total
//   - starlance_live_missions
package telemetry
