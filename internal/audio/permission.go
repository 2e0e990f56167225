package audio

import (
	log "log/slog"

	"github.com/gordonklaus/portaudio"

	"zegion/internal/capture"
)

// DevicePermission treats the microphone as granted when an input device
// is available. Desktop systems have no runtime prompt, so a request only
// tells the user what is missing. PortAudio must be initialized.
type DevicePermission struct{}

var _ capture.Permissions = DevicePermission{}

func (DevicePermission) MicrophoneGranted() bool {
	dev, err := portaudio.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

func (DevicePermission) RequestMicrophone() {
	log.Warn("No usable input device, connect a microphone or allow access to it")
}
