package web

import "go.opentelemetry.io/otel"

const scopeName = "magiccal/internal/web"

var tracer = otel.Tracer(scopeName)
