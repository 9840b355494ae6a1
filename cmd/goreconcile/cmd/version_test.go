package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)

	runVersion(c, nil)

	out := buf.String()
	assert.Contains(t, out, "goreconcile version")
	assert.Contains(t, out, Version)
	assert.Contains(t, out, "Go version:")
	assert.Contains(t, out, "OS/Arch:")
}
