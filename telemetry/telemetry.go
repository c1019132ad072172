//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the process-wide tracer the engines open spans
// on. It defaults to a noop provider; embedding applications install their
// own via SetTracerProvider before building workflows.
package telemetry

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentName is the instrumentation scope name used for all spans.
const InstrumentName = "github.com/craftgen/craftgen-go"

// TracerProvider is the active provider.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the tracer the engines use.
var Tracer = TracerProvider.Tracer(InstrumentName)

// SetTracerProvider installs a provider and refreshes Tracer. Call it once
// at startup, before workflows are built.
func SetTracerProvider(provider trace.TracerProvider) {
	if provider == nil {
		return
	}
	TracerProvider = provider
	Tracer = TracerProvider.Tracer(InstrumentName)
}
