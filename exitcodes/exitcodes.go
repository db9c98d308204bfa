// Package exitcodes defines the standard exit codes used by op-rerun.
package exitcodes

// Exit code constants used by op-rerun
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all collected tests passed or were skipped
// * TestFailure (1): Used when one or more tests fail
// * RuntimeErr (2): Used for runtime errors such as a missing skiplist, a
// failing go binary or a passlist that cannot be written
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
