//go:build windows

package wavelane

import (
	"errors"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	wca "github.com/moutend/go-wca/pkg/wca"
)

// refTimesPerNanosecond converts a time.Duration into the 100-nanosecond
// REFERENCE_TIME units the audio client expects.
const refTimesPerNanosecond = 100

// wcaDeviceClient adapts a WASAPI IAudioClient to the DeviceClient surface.
type wcaDeviceClient struct {
	client *wca.IAudioClient

	// blockAlign is recorded at Initialize so the render client can size the
	// raw byte view of claimed frames.
	blockAlign int
}

func toWaveFormatEx(f WireFormat) wca.WAVEFORMATEX {
	return wca.WAVEFORMATEX{
		WFormatTag:      f.Tag,
		NChannels:       f.Channels,
		NSamplesPerSec:  f.SamplesPerSec,
		NAvgBytesPerSec: f.AvgBytesPerSec,
		NBlockAlign:     f.BlockAlign,
		WBitsPerSample:  f.BitsPerSample,
		CbSize:          0,
	}
}

func fromWaveFormatEx(wfx *wca.WAVEFORMATEX) WireFormat {
	return WireFormat{
		Tag:            wfx.WFormatTag,
		Channels:       wfx.NChannels,
		SamplesPerSec:  wfx.NSamplesPerSec,
		AvgBytesPerSec: wfx.NAvgBytesPerSec,
		BlockAlign:     wfx.NBlockAlign,
		BitsPerSample:  wfx.WBitsPerSample,
	}
}

func (c *wcaDeviceClient) IsFormatSupported(candidate WireFormat) (FormatSupport, *WireFormat, error) {
	wfx := toWaveFormatEx(candidate)

	var closest *wca.WAVEFORMATEX
	err := c.client.IsFormatSupported(wca.AUDCLNT_SHAREMODE_SHARED, &wfx, &closest)

	// The substitute is allocated by the device and must be freed here; its
	// contents are copied out first.
	if closest != nil {
		defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(closest)))
	}

	if err == nil {
		return FormatSupported, nil, nil
	}

	switch oleCode(err) {
	case hresultSFalse:
		if closest == nil {
			return FormatUnsupported, nil, nil
		}
		alt := fromWaveFormatEx(closest)
		return FormatSubstituted, &alt, nil
	case hresultUnsupportedFormat:
		return FormatUnsupported, nil, nil
	default:
		return FormatUnsupported, nil, translateDeviceError("query format support", err)
	}
}

func (c *wcaDeviceClient) Initialize(bufferDuration time.Duration, format WireFormat) error {
	wfx := toWaveFormatEx(format)
	hint := wca.REFERENCE_TIME(bufferDuration.Nanoseconds() / refTimesPerNanosecond)

	if err := c.client.Initialize(
		wca.AUDCLNT_SHAREMODE_SHARED,
		0,
		hint,
		0,
		&wfx,
		nil,
	); err != nil {
		return translateDeviceError("initialize audio client", err)
	}

	c.blockAlign = int(format.BlockAlign)

	return nil
}

func (c *wcaDeviceClient) BufferSize() (uint32, error) {
	var frames uint32
	if err := c.client.GetBufferSize(&frames); err != nil {
		return 0, translateDeviceError("get buffer size", err)
	}

	return frames, nil
}

func (c *wcaDeviceClient) RenderService() (RenderClient, error) {
	if c.blockAlign == 0 {
		return nil, errors.New("render service requested before stream initialization")
	}

	var render *wca.IAudioRenderClient
	if err := c.client.GetService(wca.IID_IAudioRenderClient, &render); err != nil {
		return nil, translateDeviceError("get render service", err)
	}

	return &wcaRenderClient{client: render, blockAlign: c.blockAlign}, nil
}

func (c *wcaDeviceClient) CurrentPadding() (uint32, error) {
	var padding uint32
	if err := c.client.GetCurrentPadding(&padding); err != nil {
		return 0, translateDeviceError("get current padding", err)
	}

	return padding, nil
}

func (c *wcaDeviceClient) Start() error {
	if err := c.client.Start(); err != nil {
		return translateDeviceError("start stream", err)
	}

	return nil
}

func (c *wcaDeviceClient) Stop() error {
	if err := c.client.Stop(); err != nil {
		return translateDeviceError("stop stream", err)
	}

	return nil
}

func (c *wcaDeviceClient) Release() {
	c.client.Release()
}

// wcaRenderClient adapts a WASAPI IAudioRenderClient to the RenderClient
// surface.
type wcaRenderClient struct {
	client     *wca.IAudioRenderClient
	blockAlign int
}

func (r *wcaRenderClient) AcquireBuffer(frames uint32) ([]byte, error) {
	var data *byte
	if err := r.client.GetBuffer(frames, &data); err != nil {
		return nil, translateDeviceError("get render buffer", err)
	}

	return unsafe.Slice(data, int(frames)*r.blockAlign), nil
}

func (r *wcaRenderClient) CommitBuffer(frames uint32) error {
	if err := r.client.ReleaseBuffer(frames, 0); err != nil {
		return translateDeviceError("release render buffer", err)
	}

	return nil
}

func (r *wcaRenderClient) Release() {
	r.client.Release()
}
