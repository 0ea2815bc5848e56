package uds

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wbcubazo/Multiday-mini/internal/logging"
)

// lockedBuffer collects server logs written from connection goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// shortSockPath keeps socket paths under the sun_path limit.
func shortSockPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "md-uds-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "t.sock")
}

func startServer(t *testing.T, register func(s *Server)) (*Server, *Client, *lockedBuffer) {
	t.Helper()
	logs := &lockedBuffer{}
	path := shortSockPath(t)
	s := NewServer(path, logging.New(logs, logging.LevelDebug, "test"))
	if register != nil {
		register(s)
	}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	c := NewClient(path)
	c.SetTimeout(5 * time.Second)
	return s, c, logs
}

func TestFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req, err := NewRequest("plan", map[string]string{"goal": `"focus"`})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(&buf, req))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, ProtocolVersion, got.ProtocolVersion)
	assert.Equal(t, "plan", got.Command)

	var params struct{ Goal string }
	require.NoError(t, got.DecodeParams(&params))
	assert.Equal(t, `"focus"`, params.Goal)
}

func TestFraming_RejectsOversizedLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	var v Request
	err := ReadFrame(buf, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}

func TestFraming_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, map[string]string{"k": "v"}))
	truncated := bytes.NewBuffer(buf.Bytes()[:buf.Len()-2])
	var v map[string]string
	require.Error(t, ReadFrame(truncated, &v))
}

func TestServer_CallDecodesData(t *testing.T) {
	_, c, _ := startServer(t, func(s *Server) {
		s.Handle("echo", func(_ context.Context, req *Request) *Response {
			var p struct{ Msg string }
			if err := req.DecodeParams(&p); err != nil {
				return ErrorResponse(ErrCodeValidation, err.Error())
			}
			return SuccessResponse(map[string]string{"echo": p.Msg})
		})
	})

	var out map[string]string
	require.NoError(t, c.Call("echo", map[string]string{"msg": "hello"}, &out))
	assert.Equal(t, "hello", out["echo"])
}

func TestServer_UnknownCommand(t *testing.T) {
	_, c, _ := startServer(t, nil)

	err := c.Call("nonexistent", nil, nil)
	require.Error(t, err)
	var detail *ErrorDetail
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, ErrCodeUnknownCommand, detail.Code)
}

func TestServer_ProtocolMismatch(t *testing.T) {
	_, c, _ := startServer(t, func(s *Server) {
		s.Handle("ping", func(context.Context, *Request) *Response { return SuccessResponse(nil) })
	})

	resp, err := c.Send(&Request{ProtocolVersion: 99, Command: "ping"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}

func TestServer_HandlerPanicBecomesInternalError(t *testing.T) {
	_, c, logs := startServer(t, func(s *Server) {
		s.Handle("boom", func(context.Context, *Request) *Response { panic("bad state") })
	})

	err := c.Call("boom", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeInternal)
	assert.Contains(t, logs.String(), "handler_panic command=boom")
}

func TestServer_ConcurrentClients(t *testing.T) {
	s, _, _ := startServer(t, func(s *Server) {
		s.Handle("ping", func(context.Context, *Request) *Response {
			return SuccessResponse(map[string]string{"status": "ok"})
		})
	})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- NewClient(s.SocketPath()).Call("ping", nil, nil)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_ConnectionTimeout(t *testing.T) {
	logs := &lockedBuffer{}
	s := NewServer(shortSockPath(t), logging.New(logs, logging.LevelDebug, "test"))
	s.SetConnTimeout(50 * time.Millisecond)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	conn, err := net.Dial("unix", s.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	// never send a frame; the server should give up and close
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	assert.Eventually(t, func() bool { return strings.Contains(logs.String(), "read_request_failed") },
		time.Second, 10*time.Millisecond)
}

func TestServer_SocketPermissionsAndCleanup(t *testing.T) {
	path := shortSockPath(t)
	s := NewServer(path, nil)
	require.NoError(t, s.Start())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	s.Stop()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestClient_RunnerNotRunning(t *testing.T) {
	c := NewClient(shortSockPath(t))
	c.SetTimeout(time.Second)
	err := c.Call("ping", nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "is it running?"))
}

func TestResponses(t *testing.T) {
	ok := SuccessResponse(map[string]int{"n": 1})
	assert.True(t, ok.Success)
	assert.JSONEq(t, `{"n":1}`, string(ok.Data))

	empty := SuccessResponse(nil)
	assert.True(t, empty.Success)
	assert.Nil(t, empty.Data)

	bad := SuccessResponse(map[string]any{"ch": make(chan int)})
	assert.False(t, bad.Success)
	assert.Equal(t, ErrCodeInternal, bad.Error.Code)

	failed := ErrorResponse(ErrCodeValidation, "goal too long")
	assert.False(t, failed.Success)
	assert.EqualError(t, failed.Error, "VALIDATION_ERROR: goal too long")

	var out json.RawMessage
	assert.Error(t, failed.DecodeData(&out))
}
