// Package logx is a thin structured-logging façade over zerolog.
//
// It exists so components depend on a tiny Logger value instead of a
// concrete zerolog.Logger, and so sinks (console, file, operator DM) can be
// swapped at runtime without touching call sites. The zero Logger is a
// safe no-op.
package logx
