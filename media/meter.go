package media

import (
	"math"
	"sync"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// frameBufferSize holds 40ms of 48kHz stereo int16 samples.
const frameBufferSize = 1920 * 2 * 2

// levelMeter decodes remote Opus payloads and tracks the RMS level of the
// most recent frame.
type levelMeter struct {
	decoder  opus.Decoder
	output   []byte
	level    float64
	frames   uint64
	failures uint64
	mu       sync.Mutex
}

func newLevelMeter() *levelMeter {
	return &levelMeter{
		decoder: opus.NewDecoder(),
		output:  make([]byte, frameBufferSize),
	}
}

// observe decodes one Opus payload and updates the level. Frames the
// decoder cannot handle are counted and skipped.
func (m *levelMeter) observe(payload []byte) {
	if len(payload) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bandwidth, isStereo, err := m.decoder.Decode(payload, m.output)
	if err != nil {
		m.failures++
		if m.failures == 1 {
			logrus.WithFields(logrus.Fields{
				"function": "levelMeter.observe",
				"error":    err.Error(),
			}).Debug("Remote audio frame not decodable, level metering degraded")
		}
		return
	}
	m.frames++
	n := decodedBytes(payload, bandwidth, isStereo)
	if n > len(m.output) {
		n = len(m.output)
	}
	m.level = rmsLevel(m.output[:n], isStereo)
}

// bandwidthSampleRate returns the PCM rate the decoder writes for b.
func bandwidthSampleRate(b opus.Bandwidth) int {
	switch b {
	case opus.BandwidthNarrowband:
		return 8000
	case opus.BandwidthMediumband:
		return 12000
	case opus.BandwidthWideband:
		return 16000
	case opus.BandwidthSuperwideband:
		return 24000
	default:
		return 48000
	}
}

// frameDuration returns the duration in microseconds of one frame for the
// TOC configuration number (RFC 6716 section 3.1).
func frameDuration(config byte) int {
	switch {
	case config < 12:
		return []int{10000, 20000, 40000, 60000}[config%4]
	case config < 16:
		return []int{10000, 20000}[config%2]
	default:
		return []int{2500, 5000, 10000, 20000}[config%4]
	}
}

// frameCount returns the number of frames the packet carries.
func frameCount(payload []byte) int {
	switch payload[0] & 0x3 {
	case 0:
		return 1
	case 1, 2:
		return 2
	default:
		if len(payload) < 2 {
			return 1
		}
		return int(payload[1] & 0x3f)
	}
}

// decodedBytes returns how much of the output buffer the decoder filled
// for payload.
func decodedBytes(payload []byte, bandwidth opus.Bandwidth, stereo bool) int {
	channels := 1
	if stereo {
		channels = 2
	}
	micros := frameDuration(payload[0]>>3) * frameCount(payload)
	samples := bandwidthSampleRate(bandwidth) * micros / 1000000
	return samples * channels * 2
}

func (m *levelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// rmsLevel returns the RMS of little-endian int16 samples scaled to 0..1.
// For stereo frames only the left channel is measured.
func rmsLevel(pcm []byte, stereo bool) float64 {
	step := 2
	if stereo {
		step = 4
	}
	var sum float64
	var n int
	for i := 0; i+1 < len(pcm); i += step {
		sample := float64(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		sum += sample * sample
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum/float64(n)) / math.MaxInt16
}
