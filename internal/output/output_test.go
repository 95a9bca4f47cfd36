package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Icons(t *testing.T) {
	tests := []struct {
		name  string
		print func(w *Writer)
		icon  string
		msg   string
	}{
		{"success", func(w *Writer) { w.Success("3 tasks generated") }, "✅", "3 tasks generated"},
		{"warning", func(w *Writer) { w.Warningf("%d tasks skipped", 2) }, "⚠️", "2 tasks skipped"},
		{"error", func(w *Writer) { w.Errorf("store %s", "unavailable") }, "❌", "store unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer with a buffer
			buf := &bytes.Buffer{}
			w := New(buf)

			// When: printing
			tt.print(w)

			// Then: icon and message appear, without colour codes
			assert.Contains(t, buf.String(), tt.icon)
			assert.Contains(t, buf.String(), tt.msg)
			assert.NotContains(t, buf.String(), "\033[")
		})
	}
}

func TestWriter_StatusWithoutIconIsIndented(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "pid: p1")
	assert.Equal(t, "   pid: p1\n", buf.String())
}

func TestWriter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Table([]string{"ID", "PID", "KIND"}, [][]string{
		{"1", "doi:10.18739/A2J32X", "update"},
		{"12", "p2", "delete"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	// Columns line up.
	assert.Equal(t, strings.Index(lines[0], "PID"), strings.Index(lines[1], "doi:"))
	assert.Equal(t, strings.Index(lines[0], "KIND"), strings.Index(lines[2], "delete"))
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"removed": 2}))
	assert.Equal(t, "{\n  \"removed\": 2\n}\n", buf.String())
}

func TestIsTTY_NonTerminal(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTTY(f))
}

func TestWriter_Code(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a\nb")
	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}
