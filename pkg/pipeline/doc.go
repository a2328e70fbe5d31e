// Package pipeline defines the boundary between plugins and the measurement pipeline.
//
// A started plugin receives a *Start handle and registers sources, transforms
// and outputs through it. The Builder keeps those registrations per plugin so
// that stopping a plugin withdraws exactly what it added. Scheduling and
// running the elements is left to the pipeline engine.
package pipeline
