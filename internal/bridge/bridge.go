// Package bridge is the facade over the plugin runtime: manifest discovery,
// instance lifecycle, render round trips and the status snapshot consumed
// by the HTTP API. One runtime process serves every instance; round trips
// against it are serialized.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vizbridged/internal/protocol"
	"vizbridged/internal/shader"
	"vizbridged/internal/supervisor"
	"vizbridged/internal/transport"
	"vizbridged/pkg/types"
)

// RuntimeProcess is one live runtime generation as the bridge sees it.
// *supervisor.Process implements it; tests substitute in-memory fakes.
type RuntimeProcess interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	PID() int
	StderrTail() string
	Stop(grace time.Duration)
}

// Launcher spawns runtime generations. extraEnv carries the transport
// handshake (region path, mode, array lengths).
type Launcher interface {
	Launch(extraEnv []string) (RuntimeProcess, error)
}

// ExecLauncher launches the configured runtime executable.
type ExecLauncher struct {
	Log  zerolog.Logger
	Exe  string
	Args []string
	Env  []string
}

// Launch spawns one runtime process.
func (l ExecLauncher) Launch(extraEnv []string) (RuntimeProcess, error) {
	env := append(append([]string{}, l.Env...), extraEnv...)
	return supervisor.StartProcess(l.Log, l.Exe, l.Args, env)
}

// Config carries the bridge tunables.
type Config struct {
	// RegionPath is the shared-memory region handed to the runtime.
	RegionPath string
	// Codec fixes the snapshot array lengths for this session.
	Codec protocol.FrameCodec
	// RoundTripTimeout is the hard per-request deadline; exceeding it is
	// treated exactly like a runtime crash.
	RoundTripTimeout time.Duration
	// StartupTimeout bounds the scan/list discovery exchange.
	StartupTimeout time.Duration
	// StopGrace is how long a runtime gets to exit after SIGTERM.
	StopGrace time.Duration
	// Policy bounds automatic restarts.
	Policy supervisor.Policy
}

func (c *Config) applyDefaults() {
	if c.RoundTripTimeout <= 0 {
		c.RoundTripTimeout = 2 * time.Second
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 15 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
}

// RenderResult is one parsed frame.
type RenderResult struct {
	// Commands is the validated, replay-ready instruction sequence.
	Commands []types.Command
	// Raw is the wire-form command buffer as the runtime sent it.
	Raw json.RawMessage
	// Stats counts what validation did to the buffer.
	Stats protocol.ParseStats
}

// Bridge supervises one plugin runtime and exposes the operations the host
// and the HTTP API need.
type Bridge struct {
	log      zerolog.Logger
	cfg      Config
	launcher Launcher
	parser   *protocol.CommandParser
	shaders  *shader.Cache
	sel      *transport.Selector
	sup      *supervisor.Supervisor
	started  time.Time

	// renderMu serializes the render path; the shader cache is confined
	// to it.
	renderMu sync.Mutex

	mu        sync.Mutex
	proc      RuntimeProcess
	conn      *transport.Conn
	manifests map[string]types.Manifest
	instances map[string]*Instance
	lastSnap  *types.AudioSnapshot
}

// New wires a bridge. comp is the host renderer's GPU backend for shader
// compilation; launcher spawns the runtime.
func New(log zerolog.Logger, cfg Config, launcher Launcher, comp shader.Compiler) *Bridge {
	cfg.applyDefaults()
	b := &Bridge{
		log:       log,
		cfg:       cfg,
		launcher:  launcher,
		parser:    protocol.NewCommandParser(log),
		shaders:   shader.NewCache(log, comp),
		sel:       transport.NewSelector(log, cfg.RegionPath, cfg.Codec),
		manifests: make(map[string]types.Manifest),
		instances: make(map[string]*Instance),
	}
	b.sup = supervisor.New(log, cfg.Policy, b.launchRuntime)
	return b
}

// Start launches the runtime and runs manifest discovery. A start failure
// enters the supervisor's crash/restart cycle.
func (b *Bridge) Start() error {
	b.started = time.Now()
	return b.sup.Start()
}

// launchRuntime replaces the current runtime generation: stop the old
// process, re-evaluate the snapshot transport, spawn, discover manifests
// and re-create the instances that were alive before the crash.
func (b *Bridge) launchRuntime() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc != nil {
		b.proc.Stop(b.cfg.StopGrace)
		b.proc = nil
		b.conn = nil
	}

	mode := b.sel.Reconnect()
	env := []string{
		"VIZ_TRANSPORT=" + string(mode),
		"VIZ_SHM_REGION=" + b.cfg.RegionPath,
		fmt.Sprintf("VIZ_SPECTRUM_BINS=%d", b.cfg.Codec.SpectrumLen),
		fmt.Sprintf("VIZ_WAVEFORM_SAMPLES=%d", b.cfg.Codec.WaveformLen),
	}
	proc, err := b.launcher.Launch(env)
	if err != nil {
		return fmt.Errorf("launch runtime: %w", err)
	}
	conn := transport.NewConn(b.log, proc.Stdin(), proc.Stdout())

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StartupTimeout)
	defer cancel()
	if err := b.discover(ctx, conn); err != nil {
		proc.Stop(b.cfg.StopGrace)
		return fmt.Errorf("manifest discovery: %w (stderr: %s)", err, proc.StderrTail())
	}

	b.proc = proc
	b.conn = conn
	runtimeLaunchesTotal.Inc()

	// Instances predating a crash are re-created in the new runtime so
	// the host's handles stay valid. Best effort; a plugin that fails to
	// re-instantiate keeps its bookkeeping and will error on render.
	for _, inst := range b.instances {
		req := &protocol.Request{Type: protocol.MsgCreate, ManifestID: inst.ManifestID,
			InstanceID: inst.ID, Width: inst.W, Height: inst.H}
		if resp, err := conn.RoundTrip(ctx, req); err != nil || resp.IsError() {
			b.log.Warn().Str("instance", inst.ID).Str("manifest", inst.ManifestID).
				Err(err).Msg("instance re-creation failed after restart")
		}
	}
	return nil
}

// discover runs the scan/list exchange and rebuilds the manifest registry.
// Caller holds b.mu.
func (b *Bridge) discover(ctx context.Context, conn *transport.Conn) error {
	resp, err := conn.RoundTrip(ctx, &protocol.Request{Type: protocol.MsgScan})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return ErrPlugin(resp.Message)
	}
	resp, err = conn.RoundTrip(ctx, &protocol.Request{Type: protocol.MsgList})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return ErrPlugin(resp.Message)
	}

	manifests := make(map[string]types.Manifest, len(resp.Manifests))
	for _, m := range resp.Manifests {
		if err := m.Validate(); err != nil {
			b.log.Warn().Str("manifest", m.ID).Err(err).Msg("invalid manifest skipped")
			continue
		}
		if _, dup := manifests[m.ID]; dup {
			b.log.Warn().Str("manifest", m.ID).Msg("duplicate manifest id skipped")
			continue
		}
		manifests[m.ID] = m
	}
	b.manifests = manifests
	b.log.Info().Int("manifests", len(manifests)).Msg("plugin manifests discovered")
	return nil
}

// do runs one supervised round trip. A transport failure or timeout counts
// as a crash; an error response from a healthy runtime does not.
func (b *Bridge) do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var resp *protocol.Response
	start := time.Now()
	err := b.sup.Do(func() error {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return transport.ErrUnavailable("no runtime connection")
		}
		rctx, cancel := context.WithTimeout(ctx, b.cfg.RoundTripTimeout)
		defer cancel()
		r, err := conn.RoundTrip(rctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	roundTripDuration.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		roundTripsTotal.WithLabelValues(req.Type, "error").Inc()
		return nil, err
	}
	if resp.IsError() {
		roundTripsTotal.WithLabelValues(req.Type, "plugin_error").Inc()
		return nil, ErrPlugin(resp.Message)
	}
	roundTripsTotal.WithLabelValues(req.Type, "ok").Inc()
	return resp, nil
}

// ListManifests returns the discovered manifests ordered by id.
func (b *Bridge) ListManifests() []types.Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Manifest, 0, len(b.manifests))
	for _, m := range b.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateInstance instantiates a plugin from manifestID and returns the new
// instance id.
func (b *Bridge) CreateInstance(ctx context.Context, manifestID string) (string, error) {
	b.mu.Lock()
	m, ok := b.manifests[manifestID]
	b.mu.Unlock()
	if !ok {
		return "", ErrManifestNotFound(manifestID)
	}

	id := uuid.NewString()
	req := &protocol.Request{Type: protocol.MsgCreate, ManifestID: manifestID,
		InstanceID: id, Width: m.DefaultSize.W, Height: m.DefaultSize.H}
	if _, err := b.do(ctx, req); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.instances[id] = &Instance{ID: id, ManifestID: manifestID,
		W: m.DefaultSize.W, H: m.DefaultSize.H}
	b.mu.Unlock()
	b.log.Info().Str("instance", id).Str("manifest", manifestID).Msg("instance created")
	return id, nil
}

// DestroyInstance removes an instance. Local bookkeeping goes away even
// when the runtime is down; the runtime side is informed best effort. Safe
// to call while a render for the same instance is in flight: the render
// completes against the old bookkeeping first.
func (b *Bridge) DestroyInstance(ctx context.Context, id string) error {
	b.mu.Lock()
	_, ok := b.instances[id]
	if ok {
		delete(b.instances, id)
	}
	b.mu.Unlock()
	if !ok {
		return ErrInstanceNotFound(id)
	}

	if _, err := b.do(ctx, &protocol.Request{Type: protocol.MsgDestroy, InstanceID: id}); err != nil {
		if supervisor.IsNotRunning(err) {
			return nil
		}
		return err
	}
	return nil
}

// RenderInstance runs one render round trip. snap may be nil, in which case
// the most recently published snapshot is used. The parsed commands have
// custom shaders resolved through the cache; instructions whose shader
// fails to compile are dropped from the frame.
func (b *Bridge) RenderInstance(ctx context.Context, id string, snap *types.AudioSnapshot, w, h int) (*RenderResult, error) {
	b.mu.Lock()
	inst, ok := b.instances[id]
	if !ok {
		b.mu.Unlock()
		return nil, ErrInstanceNotFound(id)
	}
	if w <= 0 {
		w = inst.W
	}
	if h <= 0 {
		h = inst.H
	}
	inst.W, inst.H = w, h
	if snap == nil {
		snap = b.lastSnap
	}
	b.mu.Unlock()

	b.renderMu.Lock()
	defer b.renderMu.Unlock()

	req := &protocol.Request{Type: protocol.MsgRender, InstanceID: id, Width: w, Height: h}
	if snap != nil {
		if inline := b.sel.Publish(snap); inline {
			req.Audio = snap
		}
	}
	resp, err := b.do(ctx, req)
	if err != nil {
		return nil, err
	}

	cmds, stats, err := b.parser.Parse(resp.Commands)
	if err != nil {
		commandsDroppedTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}
	cmds, shaderDrops := b.resolveShaders(cmds)
	stats.Dropped += shaderDrops
	if stats.Dropped > 0 {
		commandsDroppedTotal.WithLabelValues("validation").Add(float64(stats.Dropped))
	}
	if stats.Unknown > 0 {
		commandsDroppedTotal.WithLabelValues("unknown_kind").Add(float64(stats.Unknown))
	}
	framesRenderedTotal.Inc()

	b.mu.Lock()
	if inst, ok := b.instances[id]; ok {
		inst.FramesRendered++
		inst.LastRendered = time.Now()
	}
	b.mu.Unlock()

	return &RenderResult{Commands: cmds, Raw: resp.Commands, Stats: stats}, nil
}

// resolveShaders warms the pipeline cache for every custom-shader
// instruction and drops the ones whose program cannot be built.
func (b *Bridge) resolveShaders(cmds []types.Command) ([]types.Command, int) {
	dropped := 0
	out := cmds[:0]
	for _, cmd := range cmds {
		if cs, ok := cmd.(types.DrawCustomShader); ok {
			_, err := b.shaders.Resolve(shader.Request{
				Key:            cs.CacheKey,
				FragmentSource: cs.FragmentSource,
				ComputeSource:  cs.ComputeSource,
				BufferSize:     cs.BufferSize,
			})
			if err != nil {
				dropped++
				continue
			}
		}
		out = append(out, cmd)
	}
	return out, dropped
}

// PublishSnapshot hands the latest audio analysis to the transport. On the
// shared-memory channel the frame is visible to the runtime immediately;
// on the pipe fallback it rides along with the next render request.
func (b *Bridge) PublishSnapshot(snap *types.AudioSnapshot) {
	b.mu.Lock()
	b.lastSnap = snap
	b.mu.Unlock()
	b.sel.Publish(snap)
}

// SetProperty forwards a property change to a plugin instance.
func (b *Bridge) SetProperty(ctx context.Context, id, key string, value any) error {
	if !b.hasInstance(id) {
		return ErrInstanceNotFound(id)
	}
	_, err := b.do(ctx, &protocol.Request{Type: protocol.MsgSetProperty,
		InstanceID: id, Key: key, Value: value})
	return err
}

// NotifyResize informs the runtime that an instance's surface changed size.
func (b *Bridge) NotifyResize(ctx context.Context, id string, w, h int) error {
	b.mu.Lock()
	inst, ok := b.instances[id]
	if ok {
		inst.W, inst.H = w, h
	}
	b.mu.Unlock()
	if !ok {
		return ErrInstanceNotFound(id)
	}
	_, err := b.do(ctx, &protocol.Request{Type: protocol.MsgResize,
		InstanceID: id, Width: w, Height: h})
	return err
}

// ReloadModule asks the runtime to reload one plugin module from disk and
// clears the shader cache, since recompiled plugins may ship new sources
// under old cache keys.
func (b *Bridge) ReloadModule(ctx context.Context, manifestID string) error {
	b.mu.Lock()
	_, ok := b.manifests[manifestID]
	b.mu.Unlock()
	if !ok {
		return ErrManifestNotFound(manifestID)
	}
	if _, err := b.do(ctx, &protocol.Request{Type: protocol.MsgReload,
		ManifestID: manifestID}); err != nil {
		return err
	}
	b.renderMu.Lock()
	b.shaders.Clear()
	b.renderMu.Unlock()
	b.log.Info().Str("manifest", manifestID).Msg("module reloaded")
	return nil
}

// SaveAll collects the runtime-side persistent state of every instance.
// The returned blob is opaque; LoadAll accepts it verbatim.
func (b *Bridge) SaveAll(ctx context.Context) (json.RawMessage, error) {
	resp, err := b.do(ctx, &protocol.Request{Type: protocol.MsgSave})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LoadAll restores state previously produced by SaveAll.
func (b *Bridge) LoadAll(ctx context.Context, data json.RawMessage) error {
	_, err := b.do(ctx, &protocol.Request{Type: protocol.MsgLoad, Data: data})
	return err
}

// InstanceState returns a copy of the opaque local state blob.
func (b *Bridge) InstanceState(id string) (map[string]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound(id)
	}
	return inst.cloneState(), nil
}

// SetInstanceState overwrites the opaque local state blob.
func (b *Bridge) SetInstanceState(id string, state map[string]json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.instances[id]
	if !ok {
		return ErrInstanceNotFound(id)
	}
	inst.State = state
	return nil
}

func (b *Bridge) hasInstance(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.instances[id]
	return ok
}

// Status assembles the daemon status snapshot.
func (b *Bridge) Status() types.StatusResponse {
	b.renderMu.Lock()
	programs := b.shaders.Len()
	caps := b.shaders.Capability()
	b.renderMu.Unlock()

	b.mu.Lock()
	instances := make([]types.InstanceStatus, 0, len(b.instances))
	for _, inst := range b.instances {
		st := types.InstanceStatus{
			InstanceID:     inst.ID,
			ManifestID:     inst.ManifestID,
			FramesRendered: inst.FramesRendered,
		}
		if !inst.LastRendered.IsZero() {
			st.LastRendered = inst.LastRendered.Unix()
		}
		instances = append(instances, st)
	}
	pid := 0
	if b.proc != nil {
		pid = b.proc.PID()
	}
	b.mu.Unlock()
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].InstanceID < instances[j].InstanceID
	})

	now := time.Now()
	resp := types.StatusResponse{
		Instances:           instances,
		RuntimeState:        string(b.sup.State()),
		PID:                 pid,
		ConsecutiveFailures: b.sup.Crashes(),
		RestartsTotal:       b.sup.RestartsTotal(),
		Transport:           string(b.sel.Mode()),
		ShaderPrograms:      programs,
		PersistentCompute:   caps.PersistentCompute,
		UptimeSeconds:       int64(now.Sub(b.started).Seconds()),
		ServerTimeUnix:      now.Unix(),
	}
	if err := b.sup.TerminalErr(); err != nil {
		resp.TerminalError = err.Error()
	}
	return resp
}

// Ready reports whether the runtime can take render traffic.
func (b *Bridge) Ready() bool {
	return b.sup.State() == supervisor.StateRunning
}

// Close stops supervision, notifies the runtime and reaps the process.
func (b *Bridge) Close() error {
	b.sup.Stop()

	b.mu.Lock()
	conn, proc := b.conn, b.proc
	b.conn, b.proc = nil, nil
	b.mu.Unlock()

	if conn != nil {
		_ = conn.Send(&protocol.Request{Type: protocol.MsgShutdown})
	}
	if proc != nil {
		proc.Stop(b.cfg.StopGrace)
	}
	return b.sel.Close()
}
