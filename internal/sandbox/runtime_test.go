package sandbox

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitCopyWaitsForCopierOnDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	unblock := make(chan struct{})
	copyDone := make(chan error, 1)
	finished := false
	go func() {
		// Stays blocked, like StdCopy on a live attachment, until the
		// attachment is closed.
		<-unblock
		buf.WriteString("late output")
		finished = true
		copyDone <- io.EOF
	}()

	timedOut, _ := awaitCopy(ctx, copyDone, func() { close(unblock) })

	require.True(t, timedOut)
	assert.True(t, finished, "buffers must not be read before the copier is done")
	assert.Equal(t, "late output", buf.String())
}

func TestAwaitCopyCompletedRun(t *testing.T) {
	copyDone := make(chan error, 1)
	copyDone <- io.EOF

	closed := false
	timedOut, err := awaitCopy(context.Background(), copyDone, func() { closed = true })

	assert.False(t, timedOut)
	assert.Equal(t, io.EOF, err)
	assert.False(t, closed, "attachment stays open for the exec inspect")
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, len("hello world"), n, "overflow is swallowed, not an error")
	assert.Equal(t, "hello", buf.String())

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "hello", buf.String())
}
