package runner

import "time"

// Test execution constants
const (
	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand     = "test"
	TestListCommand = "-list"
	JSONFlag        = "-json"
	TimeoutFlag     = "-timeout"
	CountFlag       = "-count"
	RunFlag         = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// ListPattern restricts -list to test functions
	ListPattern = "^Test"

	// ListTimeout bounds a single discovery command
	ListTimeout = 5 * time.Minute

	// CancelWaitDelay is how long an interrupted go test may take to exit
	// before it is killed
	CancelWaitDelay = 10 * time.Second
)

// DiscoveryMode selects how tests are collected
type DiscoveryMode string

const (
	// DiscoveryList asks go test -list, which compiles the packages
	DiscoveryList DiscoveryMode = "list"
	// DiscoveryAST parses the test files without compiling them
	DiscoveryAST DiscoveryMode = "ast"
)

// IsValid checks if the discovery mode is supported
func (d DiscoveryMode) IsValid() bool {
	return d == DiscoveryList || d == DiscoveryAST
}
