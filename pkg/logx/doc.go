// Package logx is weeklybot's structured logging on top of zerolog.
//
// Console output is human readable with a short caller, the optional file
// sink writes JSON lines, and the chat sink forwards warnings to the
// reminder chat under its own level threshold and rate limit.
package logx
