// Package observability exports portforge build metrics and spans over OTLP.
//
// Without Setup the global OpenTelemetry providers are no-ops, so
// instrumented code runs unchanged when export is disabled.
//
//	shutdown, err := observability.Setup(ctx, observability.Options{
//	    ServiceName: "portforge",
//	    Endpoint:    "localhost:4318",
//	    Insecure:    true,
//	})
//	defer shutdown(context.Background())
//
//	metrics, err := observability.NewBuildMetrics(observability.Meter(observability.InstrumentationName))
//	ctx, span := observability.StartSpan(ctx, observability.SpanBuild)
package observability
