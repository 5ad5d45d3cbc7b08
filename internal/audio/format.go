package audio

import (
	"strconv"
	"strings"
)

// AudioFormat represents the current audio output format.
type AudioFormat struct {
	SampleRate   int    `json:"sampleRate"`   // Sample rate in Hz (44100, 96000, 192000, etc.)
	BitDepth     int    `json:"bitDepth"`     // Bit depth (16, 24, 32)
	Channels     int    `json:"channels"`     // Number of channels (usually 2)
	Format       string `json:"format"`       // Format string ("PCM", "DSD64", "DSD128", etc.)
	IsBitPerfect bool   `json:"isBitPerfect"` // True if bit-perfect output (no resampling)
}

// Status represents the current audio output status.
type Status struct {
	URI    string       `json:"uri"`    // Active stream, empty when none
	Locked bool         `json:"locked"` // True while the device is held for playback
	Format *AudioFormat `json:"format"` // Current audio format (nil if not playing)
	Volume int          `json:"volume"`
	Mute   bool         `json:"mute"`
}

// ParseFormat parses the engine's "samplerate:bits:channels" format string
// (e.g. "192000:24:2"). DSD is indicated by its sample rate (DSD64 =
// 2822400 Hz, etc.). It returns nil for an empty or malformed string.
func ParseFormat(audio string, bitPerfect bool) *AudioFormat {
	parts := strings.Split(audio, ":")
	if len(parts) < 2 {
		return nil
	}

	sampleRate, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}

	bitDepth, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}

	channels := 2 // Default to stereo
	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			channels = ch
		}
	}

	return &AudioFormat{
		SampleRate:   sampleRate,
		BitDepth:     bitDepth,
		Channels:     channels,
		Format:       detectAudioFormatType(sampleRate),
		IsBitPerfect: bitPerfect,
	}
}

// detectAudioFormatType returns a human-readable format type.
func detectAudioFormatType(sampleRate int) string {
	switch sampleRate {
	case 2822400:
		return "DSD64"
	case 5644800:
		return "DSD128"
	case 11289600:
		return "DSD256"
	case 22579200:
		return "DSD512"
	default:
		return "PCM"
	}
}

// FormatSampleRate returns a human-readable sample rate string.
func FormatSampleRate(sampleRate int) string {
	if sampleRate >= 1000000 {
		// DSD rates - show as DSD multiplier
		return detectAudioFormatType(sampleRate)
	}
	if sampleRate >= 1000 {
		return strconv.FormatFloat(float64(sampleRate)/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.Itoa(sampleRate) + "Hz"
}

// FormatBitDepth returns a human-readable bit depth string.
func FormatBitDepth(bitDepth int) string {
	return strconv.Itoa(bitDepth) + "-bit"
}

func audioFormatEqual(a, b *AudioFormat) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
