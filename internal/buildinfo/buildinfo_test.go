package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	v, c, b := Version, Commit, BuiltAt
	t.Cleanup(func() { Version, Commit, BuiltAt = v, c, b })

	Version, Commit, BuiltAt = "1.2.0", "", ""
	assert.Equal(t, "baechamap 1.2.0", String())

	Commit, BuiltAt = "abc123", "2026-10-01"
	assert.Equal(t, "baechamap 1.2.0 (abc123) built 2026-10-01", String())
	assert.Equal(t, "abc123", Info()["commit"])
}
