package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsColumns(t *testing.T) {
	ForceColors(false)

	out := Table([]string{"NAME", "STATE"}, [][]string{
		{"web", "running"},
		{"migrate", "stopped"},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[2], "migrate   stopped"))
	col := strings.Index(lines[0], "STATE")
	assert.Equal(t, col, strings.Index(lines[1], "running"))
	assert.Equal(t, col, strings.Index(lines[2], "stopped"))
}

func TestMarkWithoutColors(t *testing.T) {
	ForceColors(false)
	assert.Equal(t, "ok", Mark(true))
	assert.Equal(t, "error", Mark(false))
	assert.Equal(t, Circle, StateDot(false))
	assert.Equal(t, "web", Green("web"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"containers": 3}))
	assert.Equal(t, "{\n  \"containers\": 3\n}\n", buf.String())
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", OrDash(""))
	assert.Equal(t, "x", OrDash("x"))
}
