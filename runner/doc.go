// Package runner collects and executes Go tests and drives a tracker session
// with their outcomes.
//
// The main components are:
//   - Discover: collects top-level tests with go test -list or by parsing test files
//   - testExecutor: runs the selected tests of one package with go test -json and
//     streams the events
//   - packageRun: turns the event stream into per-test results and tracker reports
//   - ProgressIndicator: follows the run for console updates and the status server
//   - JSONStore: keeps the raw go test -json output of every package
//
// Packages run one at a time and reports reach the tracker in event order, so
// the tracker session never sees concurrent calls.
package runner
