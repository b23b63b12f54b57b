package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth reports whether a device name looks like a bluetooth headset.
// Those usually drop to a narrowband profile while the mic is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives little-endian signed 16-bit PCM.
type DataCallback func(data []byte, frameCount uint32)

// Constraints are the processing hints requested when the stream is opened.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints asks the platform for its usual voice processing.
func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// ConservativeConstraints turns every processing stage off. Used for the
// single retry after the platform rejects the default request.
func ConservativeConstraints() Constraints {
	return Constraints{}
}

type CaptureConfig struct {
	SampleRate  uint32
	Channels    uint32
	Constraints Constraints
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// softwareGain is applied when AutoGainControl is on. Both backends capture
// quiet by default, so the boost is done here rather than by the server.
const softwareGain = 8

func applyGain(s int16, c Constraints) int16 {
	if !c.AutoGainControl {
		return s
	}
	amplified := int32(s) * softwareGain
	if amplified > 32767 {
		return 32767
	}
	if amplified < -32768 {
		return -32768
	}
	return int16(amplified)
}
