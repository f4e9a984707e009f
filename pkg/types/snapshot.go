package types

// MaxChannels is the number of per-channel blocks reserved in the binary
// snapshot layout. Snapshots with fewer live channels leave the remainder
// zeroed; snapshots claiming more are clamped on decode.
const MaxChannels = 8

// ChannelLevels carries the per-channel metering scalars of one snapshot.
// dB fields use -100 as the silence floor; linear fields are 0..1+.
type ChannelLevels struct {
	RMS        float32 `json:"rms"`
	Peak       float32 `json:"peak"`
	TruePeak   float32 `json:"true_peak"`
	RMSLinear  float32 `json:"rms_linear"`
	PeakLinear float32 `json:"peak_linear"`
}

// AudioSnapshot is one frame of audio-analysis data published by the host at
// a fixed cadence. It is written once by the producer and consumed read-only;
// FrameCounter is strictly increasing while the producer is live, which is
// how consumers distinguish fresh data from a dead producer.
type AudioSnapshot struct {
	FrameCounter uint32 `json:"frame"`

	SampleRate  float32 `json:"sample_rate"`
	NumChannels uint32  `json:"num_channels"`
	Playing     bool    `json:"is_playing"`

	PositionSeconds float32 `json:"position_seconds"`
	DurationSeconds float32 `json:"duration_seconds"`

	Correlation float32 `json:"correlation"`
	StereoAngle float32 `json:"stereo_angle"`

	LUFSMomentary  float32 `json:"lufs_momentary"`
	LUFSShortTerm  float32 `json:"lufs_short_term"`
	LUFSIntegrated float32 `json:"lufs_integrated"`
	LoudnessRange  float32 `json:"loudness_range"`

	BPM       float32 `json:"bpm"`
	BeatPhase float32 `json:"beat_phase"`

	Channels [MaxChannels]ChannelLevels `json:"channels"`

	// Spectrum holds linear magnitudes, length fftSize/2+1.
	Spectrum []float32 `json:"spectrum_linear"`
	// Waveform holds time-domain samples for scope views.
	Waveform []float32 `json:"waveform"`
}
