package call

import (
	"fmt"
	"time"
)

// QualityLevel is an overall call quality assessment.
type QualityLevel int

const (
	QualityExcellent QualityLevel = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityUnacceptable
)

func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	case QualityUnacceptable:
		return "unacceptable"
	default:
		return fmt.Sprintf("unknown(%d)", int(q))
	}
}

// QualityThresholds categorize transport statistics. Packet loss is a
// percentage of expected inbound packets.
type QualityThresholds struct {
	ExcellentPacketLoss float64
	GoodPacketLoss      float64
	FairPacketLoss      float64
	PoorPacketLoss      float64

	ExcellentJitter time.Duration
	GoodJitter      time.Duration
	FairJitter      time.Duration
	PoorJitter      time.Duration

	// PoorRoundTrip caps the level at fair when exceeded.
	PoorRoundTrip time.Duration
}

// DefaultQualityThresholds returns thresholds typical for voice calls.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		ExcellentPacketLoss: 1.0,
		GoodPacketLoss:      3.0,
		FairPacketLoss:      8.0,
		PoorPacketLoss:      15.0,
		ExcellentJitter:     20 * time.Millisecond,
		GoodJitter:          50 * time.Millisecond,
		FairJitter:          100 * time.Millisecond,
		PoorJitter:          200 * time.Millisecond,
		PoorRoundTrip:       400 * time.Millisecond,
	}
}

// PacketLossPercent returns inbound loss as a percentage.
func (m MediaStats) PacketLossPercent() float64 {
	if m.PacketsLost <= 0 {
		return 0
	}
	expected := float64(m.PacketsReceived) + float64(m.PacketsLost)
	return float64(m.PacketsLost) / expected * 100
}

// AssessQuality rates m. Packet loss is the primary indicator; jitter
// refines the rating when loss is low.
func AssessQuality(m MediaStats, t QualityThresholds) QualityLevel {
	loss := m.PacketLossPercent()
	jitter := time.Duration(m.Jitter * float64(time.Second))

	var level QualityLevel
	switch {
	case loss >= t.PoorPacketLoss:
		return QualityUnacceptable
	case loss >= t.FairPacketLoss:
		return QualityPoor
	case loss >= t.GoodPacketLoss:
		level = QualityFair
	case loss >= t.ExcellentPacketLoss:
		level = QualityGood
		if jitter >= t.GoodJitter {
			level = QualityFair
		}
	default:
		switch {
		case jitter >= t.PoorJitter:
			level = QualityFair
		case jitter >= t.ExcellentJitter:
			level = QualityGood
		default:
			level = QualityExcellent
		}
	}

	rtt := time.Duration(m.CurrentRoundTripTime * float64(time.Second))
	if t.PoorRoundTrip > 0 && rtt > t.PoorRoundTrip && level < QualityFair {
		level = QualityFair
	}
	return level
}
