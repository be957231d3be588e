// Package testhelper provides common sandbox test setup/teardown, mirroring
// the project's TestSuite convention for other subsystems.
package testhelper

import (
	"testing"

	"scriptbox/internal/outputbuf"
	"scriptbox/internal/quota"
)

// Suite bundles a fresh quota accountant and output buffer for tests that
// exercise internal/* packages directly, without going through a full
// Sandbox.
type Suite struct {
	t *testing.T

	Acct *quota.Accountant
	Buf  *outputbuf.Buffer
}

// New creates a Suite with an unbounded accountant and a buffer sized to
// maxOutput (0 means unbounded).
func New(t *testing.T, maxOutput int) *Suite {
	t.Helper()
	return &Suite{
		t:    t,
		Acct: quota.New(),
		Buf:  outputbuf.New(maxOutput),
	}
}

// Reset clears the buffer and zeroes CURRENT for every resource, leaving
// LIMIT and MAXIMUM untouched — useful between sub-tests sharing a Suite.
func (s *Suite) Reset() {
	s.t.Helper()
	s.Buf.Reset()
	s.Acct.Reset(quota.Memory)
	s.Acct.Reset(quota.Instructions)
	s.Acct.Reset(quota.Output)
}

// RequireNoError fails the test immediately if err is non-nil, tagging the
// failure with msg.
func (s *Suite) RequireNoError(err error, msg string) {
	s.t.Helper()
	if err != nil {
		s.t.Fatalf("%s: %v", msg, err)
	}
}
