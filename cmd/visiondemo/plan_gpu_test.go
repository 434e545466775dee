//go:build !nogpu

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanPrintsWGSL(t *testing.T) {
	stdout := execute(t, "plan", "-p", "blur", "--extent", "8x8", "--wgsl", "--border", "wrap")

	assert.Contains(t, stdout, "// kernel 0: convolve")
	assert.Contains(t, stdout, "@compute @workgroup_size(8, 8, 1)")
	assert.Equal(t, 1, strings.Count(stdout, "fn main("))
}
