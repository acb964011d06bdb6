// Package event carries progress notifications out of a run.
//
// The engine only sees the Publisher interface and calls Publish without ever
// blocking on it. Hub provides the bounded asynchronous channel implementation;
// consumers drain it with Drain into one or more Sinks (LogSink, NATSSink or
// the CLI printer).
package event
