// Package eventlog records node state transitions.
//
// The event log is an append-only file with one JSON object per line and is
// the source of truth across runs. The status file is a projection of it,
// rebuilt by a Compactor and replaced atomically:
//
//	{"node":"libfoo","status":"running","time":"...","run_id":"...","attempt":1}
//	{"node":"libfoo","status":"built","time":"...","run_id":"...","attempt":1}
package eventlog
