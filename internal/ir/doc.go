// Package ir defines the constrained values and records that flow between
// the round engine, the store and the harness.
//
// Values are limited to strings, int64, bools, arrays and objects. There are
// no floats; amounts, block numbers and durations travel as decimal strings.
// Every record has a content-addressed ID computed over its RFC 8785
// canonical JSON with a per-record domain prefix.
//
// ir imports nothing internal.
package ir
