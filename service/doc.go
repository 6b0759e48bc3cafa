// Package service implements the per-process supervision state machine.
//
// A Service owns exactly one child OS process at a time and moves through
// NotStarted -> Starting -> Started -> Stopping -> Stopped exactly once;
// Stopped is terminal and there is no restart. Start and Stop are idempotent,
// shutdown escalates from a cooperative request (closing the child's stdin or
// an auxiliary pipe, or SIGTERM) to SIGKILL after a bounded timeout, and
// every transition is delivered in order to registered status observers.
//
// The command, arguments, and shutdown method come from a Descriptor that is
// resolved lazily by a DescriptorProvider inside Start, because building a
// descriptor may itself require asynchronous, fallible work such as
// discovering a free TCP port or creating a state directory.
package service
