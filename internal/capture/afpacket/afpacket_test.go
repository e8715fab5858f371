//go:build linux

package afpacket

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/gopacket/afpacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"firestige.xyz/sourcewatch/internal/capture"
)

func TestOpenRequiresInterface(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(afpacket.ErrTimeout))
	assert.True(t, isTransient(afpacket.ErrPoll))
	assert.True(t, isTransient(fmt.Errorf("poll: %w", unix.EINTR)))
	assert.False(t, isTransient(errors.New("socket closed")))
	assert.False(t, isTransient(capture.ErrTimeout))
}

func TestCompileFilter(t *testing.T) {
	insns, err := CompileFilter("tcp or udp", 128)
	require.NoError(t, err)
	require.NotEmpty(t, insns)

	// The program must decode into valid x/net/bpf instructions and end in a return.
	prog, ok := bpf.Disassemble(insns)
	require.True(t, ok)
	switch prog[len(prog)-1].(type) {
	case bpf.RetConstant, bpf.RetA:
	default:
		t.Fatalf("last instruction is %T, want a return", prog[len(prog)-1])
	}
}

func TestCompileFilterInvalid(t *testing.T) {
	_, err := CompileFilter("not a ( filter", 128)
	assert.Error(t, err)
}
