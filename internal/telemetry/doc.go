// Package telemetry sets up OpenTelemetry tracing for finview.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	client, err := projectsvc.NewFromConfig(cfg,
//	    projectsvc.WithTracerProvider(tel.TracerProvider()))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4318"   # OTLP/HTTP collector
//	  insecure: true
//	  sample_rate: 1.0
//
// # Error Handling
//
// Telemetry failures do not stop the client. If the exporter cannot be
// created the instance is marked degraded and hands out the global no-op
// provider.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	client, _ := projectsvc.New(url, time.Second,
//	    projectsvc.WithTracerProvider(tt.TracerProvider()))
//	...
//	tt.AssertSpanExists(t, "projectsvc.upload")
package telemetry
