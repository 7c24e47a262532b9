// Package utils provides small shared helpers for kgpath: a generic worker
// pool with per-item results, panic recovery, vector math, and environment
// helpers.
package utils
