// Package logx configures pushbridge's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level and sinks swappable at runtime (config hot reload)
//
// Console output goes to stderr by default: when the consumer link runs over
// stdio, stdout carries protocol frames and must stay clean.
package logx
