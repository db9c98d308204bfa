package rerun

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-rerun/exitcodes"
)

func TestErrorTypes(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("no go binary"))
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", runtimeErr)))
	assert.False(t, IsTestFailureError(runtimeErr))
	assert.Equal(t, "runtime error: no go binary", runtimeErr.Error())

	failure := NewTestFailureError("TestB failed")
	assert.True(t, IsTestFailureError(failure))
	assert.False(t, IsRuntimeError(failure))
	assert.Equal(t, "test failure: TestB failed", failure.Error())

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: exitcodes.Success},
		{name: "test failure", err: NewTestFailureError("x"), want: exitcodes.TestFailure},
		{name: "runtime error", err: NewRuntimeError(errors.New("x")), want: exitcodes.RuntimeErr},
		{name: "untyped error", err: errors.New("x"), want: exitcodes.RuntimeErr},
		// a failed passlist write outranks failed tests
		{name: "joined", err: errors.Join(NewTestFailureError("x"), NewRuntimeError(errors.New("y"))), want: exitcodes.RuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
