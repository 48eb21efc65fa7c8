//go:build windows

package wavelane

import (
	"fmt"

	ole "github.com/go-ole/go-ole"
	wca "github.com/moutend/go-wca/pkg/wca"
	"go.uber.org/zap"
)

const (
	// hresultSFalse is returned by CoInitializeEx when COM was already
	// initialized on this thread, and by the format support query when the
	// device offers a substitute.
	hresultSFalse = 0x1

	// AUDCLNT_E_DEVICE_INVALIDATED: the endpoint was unplugged or disabled.
	hresultDeviceInvalidated = 0x88890004

	// AUDCLNT_E_UNSUPPORTED_FORMAT: the device rejected the format with no
	// substitute.
	hresultUnsupportedFormat = 0x88890008
)

// wcaEndpoint is the default WASAPI render endpoint, reached through the
// multimedia device enumerator.
type wcaEndpoint struct {
	logger *zap.SugaredLogger

	enumerator *wca.IMMDeviceEnumerator
	device     *wca.IMMDevice
}

// DefaultEndpoint opens the system's default render endpoint. The returned
// endpoint owns its COM handles; call Release once done handing out device
// clients.
func DefaultEndpoint(logger *zap.SugaredLogger) (Endpoint, error) {
	logger = logger.Named("endpoint")

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// Handle redundant initialization gracefully
		if oleErr, ok := err.(*ole.OleError); ok && oleErr.Code() == hresultSFalse {
			logger.Warn("CoInitializeEx called redundantly")
		} else {
			logger.Warnw("Failed to initialize COM library", "error", err)
			return nil, fmt.Errorf("initialize COM: %w", err)
		}
	}

	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&enumerator,
	); err != nil {
		logger.Warnw("Failed to create device enumerator", "error", err)
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}

	var device *wca.IMMDevice
	if err := enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &device); err != nil {
		enumerator.Release()
		return nil, translateDeviceError("get default render endpoint", err)
	}

	logger.Debug("Opened default render endpoint")

	return &wcaEndpoint{
		logger:     logger,
		enumerator: enumerator,
		device:     device,
	}, nil
}

func (e *wcaEndpoint) BuildAudioClient() (DeviceClient, error) {
	var client *wca.IAudioClient
	if err := e.device.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &client); err != nil {
		return nil, translateDeviceError("activate audio client", err)
	}

	return &wcaDeviceClient{client: client}, nil
}

func (e *wcaEndpoint) Release() {
	e.device.Release()
	e.enumerator.Release()
	ole.CoUninitialize()

	e.logger.Debug("Released endpoint COM handles")
}

// oleCode extracts the raw HRESULT from an OLE error, or 0 when err is not
// one.
func oleCode(err error) uintptr {
	if oleErr, ok := err.(*ole.OleError); ok {
		return oleErr.Code()
	}

	return 0
}

// translateDeviceError maps the invalidated-device HRESULT onto
// ErrDeviceInvalidated so the session core can classify it without knowing
// COM result codes. Every other failure passes through wrapped as-is.
func translateDeviceError(op string, err error) error {
	if oleCode(err) == hresultDeviceInvalidated {
		return fmt.Errorf("%s: %w", op, ErrDeviceInvalidated)
	}

	return fmt.Errorf("%s: %w", op, err)
}
