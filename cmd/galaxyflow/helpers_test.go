package main

import (
	"io"
	"log/slog"

	"github.com/mcfe/galaxyflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

//nolint:ireturn
func noopTracer() trace.Tracer {
	return otelhelper.NoopTracer()
}
