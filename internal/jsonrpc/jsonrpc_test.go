package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(body string) string {
	return "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func TestReader_Read(t *testing.T) {
	input := frame(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`) +
		"Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n" +
		frame(`{"jsonrpc":"2.0","method":"initialized"}`)

	r := NewReader(strings.NewReader(input))

	msg, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "initialize", msg.Method)
	assert.True(t, msg.IsRequest())
	assert.JSONEq(t, "1", string(*msg.ID))

	msg, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, "initialized", msg.Method)
	assert.True(t, msg.IsNotification())

	_, err = r.Read()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "missing length", input: "X-Other: 1\r\n\r\n{}", want: "missing Content-Length"},
		{name: "bad length", input: "Content-Length: abc\r\n\r\n", want: "invalid Content-Length"},
		{name: "short body", input: "Content-Length: 50\r\n\r\n{}", want: "error reading body"},
		{name: "bad json", input: frame("{not json"), want: "error parsing message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).Read()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	req, err := NewRequest(IntID(7), "textDocument/hover", map[string]int{"line": 3})
	require.NoError(t, err)
	require.NoError(t, w.Write(req))

	resp, err := NewResponse(IntID(7), nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(resp))

	note, err := NewNotification("exit", nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(note))

	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))

	r := NewReader(&buf)

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "textDocument/hover", got.Method)
	assert.JSONEq(t, `{"line":3}`, string(got.Params))

	got, err = r.Read()
	require.NoError(t, err)
	assert.True(t, got.IsResponse())
	assert.Equal(t, "null", string(got.Result))

	got, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, "exit", got.Method)
	assert.Nil(t, got.Params)
}

func TestNewResponse_Error(t *testing.T) {
	resp, err := NewResponse(IntID(1), "ignored", NewError(CodeMethodNotFound, "Method not found: %s", "foo"))
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "jsonrpc error -32601: Method not found: foo", resp.Error.Error())
}

func TestNewRequest_RawParams(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	req, err := NewRequest(IntID(2), "x", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, req.Params)
}
