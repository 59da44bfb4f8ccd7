// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, derive child loggers with With(), and the
// sinks (console, JSON file) can be reconfigured at runtime through the
// Service without replacing any handed-out Logger values.
package logx
