// Package sound synthesizes and plays the new-message notification cue.
package sound

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Tone describes an oscillator cue whose gain decays exponentially.
type Tone struct {
	Frequency  float64 // Hz
	Duration   time.Duration
	StartGain  float64
	EndGain    float64
	SampleRate int
}

// DefaultTone is a half-second 800 Hz sine fading from 0.3 to 0.01.
func DefaultTone() Tone {
	return Tone{
		Frequency:  800,
		Duration:   500 * time.Millisecond,
		StartGain:  0.3,
		EndGain:    0.01,
		SampleRate: 22050,
	}
}

func (t Tone) normalized() Tone {
	d := DefaultTone()
	if t.Frequency <= 0 {
		t.Frequency = d.Frequency
	}
	if t.Duration <= 0 {
		t.Duration = d.Duration
	}
	if t.StartGain <= 0 {
		t.StartGain = d.StartGain
	}
	if t.EndGain <= 0 {
		t.EndGain = d.EndGain
	}
	if t.SampleRate <= 0 {
		t.SampleRate = d.SampleRate
	}
	return t
}

// Samples renders the tone as signed 16-bit mono PCM.
func (t Tone) Samples() []int16 {
	t = t.normalized()
	n := int(t.Duration.Seconds() * float64(t.SampleRate))
	out := make([]int16, n)
	if n == 0 {
		return out
	}
	ratio := t.EndGain / t.StartGain
	for i := range out {
		progress := float64(i) / float64(n)
		gain := t.StartGain * math.Pow(ratio, progress)
		phase := 2 * math.Pi * t.Frequency * float64(i) / float64(t.SampleRate)
		out[i] = int16(math.Round(gain * math.Sin(phase) * math.MaxInt16))
	}
	return out
}

// WAV encodes the tone as a RIFF/WAVE byte stream.
func (t Tone) WAV() []byte {
	t = t.normalized()
	samples := t.Samples()
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
