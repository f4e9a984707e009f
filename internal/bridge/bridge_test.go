package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vizbridged/internal/protocol"
	"vizbridged/internal/shader"
	"vizbridged/internal/supervisor"
	"vizbridged/pkg/types"
)

// fakeProc speaks the line protocol in memory, standing in for the spawned
// runtime.
type fakeProc struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stopped atomic.Bool
}

func (p *fakeProc) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProc) Stdout() io.ReadCloser { return p.stdoutR }
func (p *fakeProc) PID() int              { return 4242 }
func (p *fakeProc) StderrTail() string    { return "" }

func (p *fakeProc) Stop(grace time.Duration) {
	if p.stopped.CompareAndSwap(false, true) {
		_ = p.stdinW.Close()
		_ = p.stdinR.Close()
		_ = p.stdoutW.Close()
		_ = p.stdoutR.Close()
	}
}

// fakeLauncher answers requests via handle and records activity.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	envs     [][]string
	requests []protocol.Request
	handle   func(req protocol.Request) protocol.Response
}

func (l *fakeLauncher) Launch(extraEnv []string) (RuntimeProcess, error) {
	l.mu.Lock()
	l.launches++
	l.envs = append(l.envs, extraEnv)
	l.mu.Unlock()

	p := &fakeProc{}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	go func() {
		sc := bufio.NewScanner(p.stdinR)
		sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
		for sc.Scan() {
			var req protocol.Request
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				continue
			}
			l.mu.Lock()
			l.requests = append(l.requests, req)
			handle := l.handle
			l.mu.Unlock()
			resp := handle(req)
			if resp.Type == "" {
				continue // simulated silence
			}
			buf, _ := json.Marshal(&resp)
			if _, err := p.stdoutW.Write(append(buf, '\n')); err != nil {
				return
			}
		}
	}()
	return p, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) requestsOf(typ string) []protocol.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []protocol.Request
	for _, r := range l.requests {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func testManifests() []types.Manifest {
	return []types.Manifest{
		{ID: "com.example.spectrum", Name: "Spectrum", Version: "1.0",
			Category:    types.CategoryAnalyzer,
			DefaultSize: types.Size{W: 300, H: 200}},
		{ID: "com.example.meter", Name: "Meter", Version: "2.1",
			Category:    types.CategoryMeter,
			DefaultSize: types.Size{W: 120, H: 400}},
	}
}

// defaultHandle answers every message the way a healthy runtime would.
func defaultHandle(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.MsgScan:
		return protocol.Response{Type: protocol.RespScanResult, Count: 2}
	case protocol.MsgList:
		return protocol.Response{Type: protocol.RespManifestList, Manifests: testManifests()}
	case protocol.MsgCreate:
		return protocol.Response{Type: protocol.RespCreated, InstanceID: req.InstanceID}
	case protocol.MsgRender:
		return protocol.Response{Type: protocol.RespRenderCommands,
			InstanceID: req.InstanceID,
			Commands:   json.RawMessage(`[{"cmd":"clear","color":4278190080},{"cmd":"fill_rect","x":0,"y":0,"w":10,"h":10,"color":1}]`)}
	case protocol.MsgSave:
		return protocol.Response{Type: protocol.RespSaveData,
			Data: json.RawMessage(`{"instances":{}}`)}
	default:
		return protocol.Response{Type: protocol.RespOK}
	}
}

type stubCompiler struct {
	caps Capability
	fail string
}

// Capability alias keeps the stub short.
type Capability = shader.Capability

func (c *stubCompiler) Compile(fragment, compute string) (uint32, error) {
	if c.fail != "" && fragment == c.fail {
		return 0, errors.New("compile error")
	}
	return 1, nil
}
func (c *stubCompiler) Release(uint32) {}

func (c *stubCompiler) Capability() shader.Capability { return c.caps }

func newTestBridge(t *testing.T, launcher *fakeLauncher) *Bridge {
	t.Helper()
	cfg := Config{
		RegionPath:       filepath.Join(t.TempDir(), "viz_audio"),
		Codec:            protocol.FrameCodec{SpectrumLen: 16, WaveformLen: 16},
		RoundTripTimeout: time.Second,
		StartupTimeout:   2 * time.Second,
		StopGrace:        100 * time.Millisecond,
		Policy:           supervisor.Policy{MaxRestarts: 5, Cooldown: 10 * time.Millisecond},
	}
	b := New(zerolog.Nop(), cfg, launcher,
		&stubCompiler{caps: shader.Capability{PersistentCompute: true, MaxWorkItems: 1024}})
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestStartDiscoversManifests(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ms := b.ListManifests()
	if len(ms) != 2 {
		t.Fatalf("manifests: %d", len(ms))
	}
	// Sorted by id.
	if ms[0].ID != "com.example.meter" || ms[1].ID != "com.example.spectrum" {
		t.Fatalf("order: %s, %s", ms[0].ID, ms[1].ID)
	}
	if envs := launcher.envs[0]; envs[0] != "VIZ_TRANSPORT=shm" {
		t.Fatalf("transport env: %v", envs)
	}
}

func TestDiscoverySkipsInvalidManifests(t *testing.T) {
	launcher := &fakeLauncher{handle: func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgList {
			bad := append(testManifests(),
				types.Manifest{ID: "noid", Name: "Bad"},              // not reverse-domain
				types.Manifest{ID: "com.example.meter", Name: "Dup"}) // duplicate
			return protocol.Response{Type: protocol.RespManifestList, Manifests: bad}
		}
		return defaultHandle(req)
	}}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(b.ListManifests()); got != 2 {
		t.Fatalf("manifests: %d", got)
	}
}

func TestCreateRenderDestroy(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()

	id, err := b.CreateInstance(ctx, "com.example.spectrum")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatalf("empty instance id")
	}

	snap := &types.AudioSnapshot{FrameCounter: 1, SampleRate: 48000}
	res, err := b.RenderInstance(ctx, id, snap, 300, 200)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(res.Commands) != 2 {
		t.Fatalf("commands: %d", len(res.Commands))
	}
	if _, ok := res.Commands[0].(types.Clear); !ok {
		t.Fatalf("first command: %T", res.Commands[0])
	}

	st := b.Status()
	if len(st.Instances) != 1 || st.Instances[0].FramesRendered != 1 {
		t.Fatalf("status instances: %+v", st.Instances)
	}
	if st.RuntimeState != string(supervisor.StateRunning) || st.PID != 4242 {
		t.Fatalf("status: %+v", st)
	}
	if st.Transport != "shm" {
		t.Fatalf("transport: %q", st.Transport)
	}

	if err := b.DestroyInstance(ctx, id); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := b.RenderInstance(ctx, id, nil, 0, 0); !IsInstanceNotFound(err) {
		t.Fatalf("render destroyed: %v", err)
	}
}

func TestCreateUnknownManifest(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := b.CreateInstance(context.Background(), "com.example.nope")
	if !IsManifestNotFound(err) {
		t.Fatalf("expected manifest not found, got %v", err)
	}
}

// An error response from a healthy runtime surfaces as a plugin error and
// never burns the restart budget.
func TestPluginErrorIsNotACrash(t *testing.T) {
	launcher := &fakeLauncher{handle: func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgRender {
			return protocol.Response{Type: protocol.RespError,
				Message: "NameError: spectrum is not defined"}
		}
		return defaultHandle(req)
	}}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	id, err := b.CreateInstance(ctx, "com.example.meter")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = b.RenderInstance(ctx, id, nil, 0, 0)
	if !IsPlugin(err) {
		t.Fatalf("expected plugin error, got %v", err)
	}
	if !b.Ready() {
		t.Fatalf("runtime restarted on a plugin error")
	}
	if launcher.launchCount() != 1 {
		t.Fatalf("launches: %d", launcher.launchCount())
	}
}

// A render timeout counts as a crash; the supervisor relaunches and the
// bridge re-creates surviving instances in the new runtime generation.
func TestRenderTimeoutRestartsRuntime(t *testing.T) {
	var silent atomic.Bool
	launcher := &fakeLauncher{}
	launcher.handle = func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgRender && silent.Load() {
			return protocol.Response{} // never answer
		}
		return defaultHandle(req)
	}
	b := newTestBridge(t, launcher)
	b.cfg.RoundTripTimeout = 50 * time.Millisecond
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	id, err := b.CreateInstance(ctx, "com.example.spectrum")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	silent.Store(true)
	if _, err := b.RenderInstance(ctx, id, nil, 0, 0); err == nil {
		t.Fatalf("expected timeout failure")
	}
	silent.Store(false)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !b.Ready() {
		time.Sleep(5 * time.Millisecond)
	}
	if !b.Ready() {
		t.Fatalf("runtime never came back, state %q", b.Status().RuntimeState)
	}
	if launcher.launchCount() != 2 {
		t.Fatalf("launches: %d", launcher.launchCount())
	}

	creates := launcher.requestsOf(protocol.MsgCreate)
	if len(creates) != 2 || creates[1].InstanceID != id {
		t.Fatalf("instance not re-created after restart: %+v", creates)
	}
	if _, err := b.RenderInstance(ctx, id, nil, 0, 0); err != nil {
		t.Fatalf("render after restart: %v", err)
	}
}

func TestShaderFailureDropsInstructionOnly(t *testing.T) {
	launcher := &fakeLauncher{handle: func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgRender {
			return protocol.Response{Type: protocol.RespRenderCommands,
				Commands: json.RawMessage(`[
					{"cmd":"draw_custom_shader","cache_key":"bad","fragment_source":"broken"},
					{"cmd":"fill_rect","x":0,"y":0,"w":5,"h":5,"color":1}
				]`)}
		}
		return defaultHandle(req)
	}}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Swap in a compiler that rejects the "broken" source.
	b.shaders = shader.NewCache(zerolog.Nop(),
		&stubCompiler{caps: shader.Capability{MaxWorkItems: 64}, fail: "broken"})

	ctx := context.Background()
	id, err := b.CreateInstance(ctx, "com.example.meter")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := b.RenderInstance(ctx, id, nil, 0, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(res.Commands) != 1 {
		t.Fatalf("commands: %d", len(res.Commands))
	}
	if _, ok := res.Commands[0].(types.FillRect); !ok {
		t.Fatalf("surviving command: %T", res.Commands[0])
	}
	if res.Stats.Dropped != 1 {
		t.Fatalf("dropped: %d", res.Stats.Dropped)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	var loaded json.RawMessage
	launcher := &fakeLauncher{}
	launcher.handle = func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgLoad {
			loaded = req.Data
		}
		return defaultHandle(req)
	}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()

	blob, err := b.SaveAll(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(blob) == 0 {
		t.Fatalf("empty save blob")
	}
	if err := b.LoadAll(ctx, blob); err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded) != string(blob) {
		t.Fatalf("blob not passed through: %s vs %s", loaded, blob)
	}
}

func TestInstanceStateBlob(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	id, err := b.CreateInstance(context.Background(), "com.example.meter")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	state := map[string]json.RawMessage{"gain": json.RawMessage(`0.5`)}
	if err := b.SetInstanceState(id, state); err != nil {
		t.Fatalf("set state: %v", err)
	}
	got, err := b.InstanceState(id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if string(got["gain"]) != "0.5" {
		t.Fatalf("state: %v", got)
	}
	// The copy is detached from internal bookkeeping.
	got["gain"] = json.RawMessage(`1.0`)
	again, _ := b.InstanceState(id)
	if string(again["gain"]) != "0.5" {
		t.Fatalf("state aliased: %v", again)
	}
}

func TestSetPropertyAndResize(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	id, err := b.CreateInstance(ctx, "com.example.meter")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := b.SetProperty(ctx, id, "sensitivity", 0.8); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if err := b.NotifyResize(ctx, id, 640, 480); err != nil {
		t.Fatalf("resize: %v", err)
	}
	props := launcher.requestsOf(protocol.MsgSetProperty)
	if len(props) != 1 || props[0].Key != "sensitivity" {
		t.Fatalf("set_property requests: %+v", props)
	}
	resizes := launcher.requestsOf(protocol.MsgResize)
	if len(resizes) != 1 || resizes[0].Width != 640 || resizes[0].Height != 480 {
		t.Fatalf("resize requests: %+v", resizes)
	}
	if err := b.SetProperty(ctx, "nope", "k", 1); !IsInstanceNotFound(err) {
		t.Fatalf("set property unknown: %v", err)
	}
}

func TestReloadClearsShaderCache(t *testing.T) {
	launcher := &fakeLauncher{handle: func(req protocol.Request) protocol.Response {
		if req.Type == protocol.MsgRender {
			return protocol.Response{Type: protocol.RespRenderCommands,
				Commands: json.RawMessage(`[{"cmd":"draw_custom_shader","cache_key":"k","fragment_source":"f"}]`)}
		}
		return defaultHandle(req)
	}}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx := context.Background()
	id, err := b.CreateInstance(ctx, "com.example.spectrum")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.RenderInstance(ctx, id, nil, 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	if b.shaders.Len() != 1 {
		t.Fatalf("cache len: %d", b.shaders.Len())
	}
	if err := b.ReloadModule(ctx, "com.example.spectrum"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if b.shaders.Len() != 0 {
		t.Fatalf("cache not cleared: %d", b.shaders.Len())
	}
	if err := b.ReloadModule(ctx, "com.example.nope"); !IsManifestNotFound(err) {
		t.Fatalf("reload unknown: %v", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	launcher := &fakeLauncher{handle: defaultHandle}
	b := newTestBridge(t, launcher)
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.Ready() {
		t.Fatalf("ready after close")
	}
	_, err := b.CreateInstance(context.Background(), "com.example.meter")
	if !supervisor.IsNotRunning(err) {
		t.Fatalf("create after close: %v", err)
	}
	st := b.Status()
	if st.RuntimeState != string(supervisor.StateStopped) || st.TerminalError != "" {
		t.Fatalf("status after close: %+v", st)
	}
}
