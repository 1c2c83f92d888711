// Package errors provides the structured error type used across portforge.
// Every fatal condition of a resolution or build run (cycles, unsatisfiable
// constraints, exhausted build retries) is reported as an AppError carrying a
// machine-readable code and the offending nodes in Details.
package errors
