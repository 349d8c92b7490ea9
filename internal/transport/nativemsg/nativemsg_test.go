package nativemsg

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"id":1}`), 0))
	require.NoError(t, WriteFrame(&buf, []byte(`{"id":2}`), 0))

	assert.Equal(t, []byte{8, 0, 0, 0}, buf.Bytes()[:4], "length is little-endian")

	first, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(first))
	second, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"id":2}`, string(second))

	_, err = ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteFrame_Limits(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteFrame(&buf, nil, 0), ErrEmptyFrame)
	assert.ErrorIs(t, WriteFrame(&buf, []byte(strings.Repeat("x", 17)), 16), ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "rejected frames must not reach the stream")
}

func header(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		max   int
		want  error
	}{
		{"oversize", header(DefaultMaxFrameSize + 1), 0, ErrFrameTooLarge},
		{"custom limit", append(header(5), "hello"...), 4, ErrFrameTooLarge},
		{"empty", header(0), 0, ErrEmptyFrame},
		{"truncated body", append(header(10), "abc"...), 0, io.ErrUnexpectedEOF},
		{"truncated header", []byte{1, 0}, 0, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input), tt.max)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConn_ReadErrorIsSticky(t *testing.T) {
	in := bytes.NewBuffer(header(DefaultMaxFrameSize + 1))
	c := NewConn(in, io.Discard, 0)

	_, err := c.ReadMessage()
	require.ErrorIs(t, err, ErrFrameTooLarge)

	// Valid bytes after a fatal error are never consumed.
	in.Write(append(header(2), "{}"...))
	_, err = c.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConn_OverPipe(t *testing.T) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewConn(ar, aw, 0, ar, aw)
	b := NewConn(br, bw, 0, br, bw)
	defer a.Close()
	defer b.Close()

	go func() { _ = a.WriteMessage([]byte(`{"action":"ping"}`)) }()
	got, err := b.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"ping"}`, string(got))

	require.NoError(t, a.Close())
	_, err = b.ReadMessage()
	assert.Error(t, err)
}
