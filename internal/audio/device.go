package audio

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/auricle-ai/auricle/pkg/audiofmt"
)

// Device is a minimal capture-device contract. Start begins delivering mono
// 16-bit PCM chunks to onChunk from the device's audio thread; onChunk must
// not block. Implementations deliver chunks until Stop.
type Device interface {
	Start(onChunk func(samples []int16)) error
	Stop() error
	Close() error
}

// Compile-time assertion that MalgoDevice implements Device.
var _ Device = (*MalgoDevice)(nil)

// MalgoDevice captures microphone audio through miniaudio (via malgo) at the
// pipeline's canonical format: mono, 16-bit signed, little-endian.
type MalgoDevice struct {
	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	deviceName string
	started    bool
}

// DeviceSelector combines a configured device name and index into the
// selector string [NewMalgoDevice] accepts. A non-empty name wins; otherwise
// a non-negative index selects by enumeration position. Both unset means the
// system default.
func DeviceSelector(name string, index int) string {
	if name != "" {
		return name
	}
	if index >= 0 {
		return strconv.Itoa(index)
	}
	return ""
}

// NewMalgoDevice initialises a capture context. deviceName selects the input
// device: empty or "default" uses the system default, a decimal string
// selects by enumeration index, anything else matches on the device name.
func NewMalgoDevice(deviceName string, sampleRate int) (*MalgoDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}
	return &MalgoDevice{
		ctx:        mctx,
		sampleRate: sampleRate,
		deviceName: deviceName,
	}, nil
}

// Start opens the capture device and begins delivering sample chunks.
// onChunk is invoked from the audio thread; it must copy or hand off data
// without blocking.
func (d *MalgoDevice) Start(onChunk func(samples []int16)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return errors.New("audio: capture context is closed")
	}
	if d.started {
		return errors.New("audio: device already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(d.sampleRate)
	cfg.Alsa.NoMMap = 1 // better compatibility on some systems

	if id, err := d.resolveDeviceID(); err != nil {
		return err
	} else if id != nil {
		cfg.Capture.DeviceID = id.Pointer()
	}

	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) < 2 {
			return
		}
		onChunk(audiofmt.BytesToSamples(pInput))
	}

	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start capture device: %w", err)
	}
	d.device = device
	d.started = true
	return nil
}

// Stop halts capture. The device may be started again afterwards.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	d.device.Uninit()
	d.device = nil
	d.started = false
	return nil
}

// Close stops capture and tears down the audio context.
func (d *MalgoDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// resolveDeviceID maps the configured device name to a malgo device ID.
// Caller must hold d.mu.
func (d *MalgoDevice) resolveDeviceID() (*malgo.DeviceID, error) {
	if d.deviceName == "" || d.deviceName == "default" {
		return nil, nil
	}
	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate capture devices: %w", err)
	}
	if idx, err := strconv.Atoi(d.deviceName); err == nil {
		if idx < 0 || idx >= len(infos) {
			return nil, fmt.Errorf("audio: capture device index %d out of range (have %d devices)", idx, len(infos))
		}
		id := infos[idx].ID
		return &id, nil
	}
	for _, info := range infos {
		if info.Name() == d.deviceName {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("audio: capture device %q not found", d.deviceName)
}
