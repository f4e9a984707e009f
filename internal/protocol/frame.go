package protocol

import (
	"encoding/binary"
	"math"

	"vizbridged/pkg/types"
)

// Binary snapshot frame layout (little-endian, fixed offsets):
//
//	Offset  Size      Field
//	0       4         magic (0x4D584D41)
//	4       4         version (1)
//	8       4         frame counter
//	12      4         total frame size in bytes
//	16      4         sample_rate (float32)
//	20      4         num_channels
//	24      4         spectrum bin count
//	28      4         waveform sample count
//	32      4         flags (bit0 = playing)
//	36..72  4 each    position, duration, correlation, stereo_angle,
//	                  lufs momentary/short/integrated, loudness range,
//	                  bpm, beat_phase (all float32)
//	76      8×20      channel blocks: rms, peak, true_peak,
//	                  rms_linear, peak_linear (float32 each)
//	236     N×4       spectrum (float32)
//	236+N×4 M×4       waveform (float32)
//
// With the default 2048 spectrum bins and 1024 waveform samples the frame is
// 236 + 8192 + 4096 = 12,524 bytes, sized to fit the shared memory region.
const (
	FrameMagic   uint32 = 0x4D584D41
	FrameVersion uint32 = 1

	FrameHeaderSize = 236

	channelsOffset = 76
	channelStride  = 20

	offMagic       = 0
	offVersion     = 4
	offCounter     = 8
	offSize        = 12
	offSampleRate  = 16
	offNumChannels = 20
	offSpectrumLen = 24
	offWaveformLen = 28
	offFlags       = 32
	offPosition    = 36
	offDuration    = 40
	offCorrelation = 44
	offStereoAngle = 48
	offLUFSMoment  = 52
	offLUFSShort   = 56
	offLUFSIntegr  = 60
	offLoudnessRng = 64
	offBPM         = 68
	offBeatPhase   = 72
)

// FrameCodec encodes and decodes AudioSnapshot frames with array lengths
// fixed at configuration time. The lengths embedded in the frame header are
// advisory for the reader; they are always clamped to the codec's configured
// maxima and to the buffer supplied by the transport, so adversarial header
// values can never cause an out-of-bounds read.
type FrameCodec struct {
	// SpectrumLen is the spectrum bin count written per frame.
	SpectrumLen int
	// WaveformLen is the waveform sample count written per frame.
	WaveformLen int
}

// Size returns the encoded frame size in bytes for this configuration.
func (c FrameCodec) Size() int {
	return FrameHeaderSize + 4*c.SpectrumLen + 4*c.WaveformLen
}

// Encode writes snap into buf and returns the number of bytes written.
// It performs no allocations and never blocks; it runs on the real-time
// producer path. Snapshot arrays shorter than the configured lengths are
// zero-padded, longer ones truncated.
//
// The frame counter at offset 8 is written last: a reader bracketing its
// read with two counter loads only observes the new counter once the body
// write has completed, which is what makes the generation check work
// without locks.
func (c FrameCodec) Encode(buf []byte, snap *types.AudioSnapshot) (int, error) {
	n := c.Size()
	if len(buf) < n {
		return 0, ErrMalformed("encode buffer too small")
	}
	le := binary.LittleEndian

	le.PutUint32(buf[offMagic:], FrameMagic)
	le.PutUint32(buf[offVersion:], FrameVersion)
	le.PutUint32(buf[offSize:], uint32(n))
	putF32(buf, offSampleRate, snap.SampleRate)
	le.PutUint32(buf[offNumChannels:], snap.NumChannels)
	le.PutUint32(buf[offSpectrumLen:], uint32(c.SpectrumLen))
	le.PutUint32(buf[offWaveformLen:], uint32(c.WaveformLen))
	var flags uint32
	if snap.Playing {
		flags |= 1
	}
	le.PutUint32(buf[offFlags:], flags)
	putF32(buf, offPosition, snap.PositionSeconds)
	putF32(buf, offDuration, snap.DurationSeconds)
	putF32(buf, offCorrelation, snap.Correlation)
	putF32(buf, offStereoAngle, snap.StereoAngle)
	putF32(buf, offLUFSMoment, snap.LUFSMomentary)
	putF32(buf, offLUFSShort, snap.LUFSShortTerm)
	putF32(buf, offLUFSIntegr, snap.LUFSIntegrated)
	putF32(buf, offLoudnessRng, snap.LoudnessRange)
	putF32(buf, offBPM, snap.BPM)
	putF32(buf, offBeatPhase, snap.BeatPhase)

	for i := 0; i < types.MaxChannels; i++ {
		off := channelsOffset + i*channelStride
		ch := &snap.Channels[i]
		putF32(buf, off, ch.RMS)
		putF32(buf, off+4, ch.Peak)
		putF32(buf, off+8, ch.TruePeak)
		putF32(buf, off+12, ch.RMSLinear)
		putF32(buf, off+16, ch.PeakLinear)
	}

	off := FrameHeaderSize
	for i := 0; i < c.SpectrumLen; i++ {
		var v float32
		if i < len(snap.Spectrum) {
			v = snap.Spectrum[i]
		}
		putF32(buf, off, v)
		off += 4
	}
	for i := 0; i < c.WaveformLen; i++ {
		var v float32
		if i < len(snap.Waveform) {
			v = snap.Waveform[i]
		}
		putF32(buf, off, v)
		off += 4
	}

	// Counter last; see the generation-check note above.
	le.PutUint32(buf[offCounter:], snap.FrameCounter)
	return n, nil
}

// Decode reads a frame from buf into snap, reusing snap's spectrum and
// waveform slices when their capacity allows. It fails with a bad-magic or
// version-mismatch error when the header does not match, and clamps the
// embedded array lengths to both the codec configuration and len(buf).
func (c FrameCodec) Decode(buf []byte, snap *types.AudioSnapshot) error {
	if len(buf) < FrameHeaderSize {
		return ErrMalformed("frame shorter than header")
	}
	le := binary.LittleEndian

	if m := le.Uint32(buf[offMagic:]); m != FrameMagic {
		return ErrBadMagic(m)
	}
	if v := le.Uint32(buf[offVersion:]); v != FrameVersion {
		return ErrVersionMismatch(v)
	}

	snap.FrameCounter = le.Uint32(buf[offCounter:])
	snap.SampleRate = getF32(buf, offSampleRate)
	snap.NumChannels = le.Uint32(buf[offNumChannels:])
	if snap.NumChannels > types.MaxChannels {
		snap.NumChannels = types.MaxChannels
	}
	snap.Playing = le.Uint32(buf[offFlags:])&1 != 0
	snap.PositionSeconds = getF32(buf, offPosition)
	snap.DurationSeconds = getF32(buf, offDuration)
	snap.Correlation = getF32(buf, offCorrelation)
	snap.StereoAngle = getF32(buf, offStereoAngle)
	snap.LUFSMomentary = getF32(buf, offLUFSMoment)
	snap.LUFSShortTerm = getF32(buf, offLUFSShort)
	snap.LUFSIntegrated = getF32(buf, offLUFSIntegr)
	snap.LoudnessRange = getF32(buf, offLoudnessRng)
	snap.BPM = getF32(buf, offBPM)
	snap.BeatPhase = getF32(buf, offBeatPhase)

	for i := 0; i < types.MaxChannels; i++ {
		off := channelsOffset + i*channelStride
		snap.Channels[i] = types.ChannelLevels{
			RMS:        getF32(buf, off),
			Peak:       getF32(buf, off+4),
			TruePeak:   getF32(buf, off+8),
			RMSLinear:  getF32(buf, off+12),
			PeakLinear: getF32(buf, off+16),
		}
	}

	specLen := clampLen(int(le.Uint32(buf[offSpectrumLen:])), c.SpectrumLen,
		(len(buf)-FrameHeaderSize)/4)
	waveLen := clampLen(int(le.Uint32(buf[offWaveformLen:])), c.WaveformLen,
		(len(buf)-FrameHeaderSize)/4-specLen)

	snap.Spectrum = growFloats(snap.Spectrum, specLen)
	off := FrameHeaderSize
	for i := 0; i < specLen; i++ {
		snap.Spectrum[i] = getF32(buf, off)
		off += 4
	}
	snap.Waveform = growFloats(snap.Waveform, waveLen)
	for i := 0; i < waveLen; i++ {
		snap.Waveform[i] = getF32(buf, off)
		off += 4
	}
	return nil
}

// clampLen bounds an embedded length field by the configured maximum and the
// floats actually available in the buffer.
// Counter reads the frame counter without decoding the body. Because
// writers store the counter last, bracketing a body read with two Counter
// loads detects a torn frame.
func Counter(buf []byte) uint32 {
	if len(buf) < offCounter+4 {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[offCounter:])
}

func clampLen(embedded, configured, avail int) int {
	n := embedded
	if n < 0 {
		n = 0
	}
	if n > configured {
		n = configured
	}
	if n > avail {
		n = avail
	}
	return n
}

func growFloats(s []float32, n int) []float32 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float32, n)
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func getF32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}
