package ics

import "go.opentelemetry.io/otel"

const scopeName = "magiccal/internal/ics"

var tracer = otel.Tracer(scopeName)
