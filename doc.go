// Package streamcoord holds the core data model for coordinating runtime
// changes against stream-processing pipelines deployed across a cluster of
// worker hosts.
//
// A pipeline's task layout is an Assignment: every component owns a set of
// executors, each bound to a contiguous task-id range on one host:port slot.
// The ranges of a component always tile [1, N] without gaps or overlaps.
//
// Commands are built with package command, executed by package execution and
// parallelism changes are computed by package reallocation. Package coordinator
// wires them together with a store and a signal channel.
package streamcoord
