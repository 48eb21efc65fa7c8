package wavelane

import "time"

// FormatSupport is the device's answer to a shared-mode format query.
type FormatSupport int

const (
	// FormatSupported means the device accepts the candidate format as-is.
	FormatSupported FormatSupport = iota

	// FormatSubstituted means the device rejected the candidate but offered
	// an alternate format it prefers. The substitute wins the negotiation.
	FormatSubstituted

	// FormatUnsupported means the device rejected the candidate outright.
	FormatUnsupported
)

// Endpoint hands out device clients for a single audio rendering device.
// Implementations wrap ErrDeviceInvalidated when the device reports itself
// unplugged or disabled.
type Endpoint interface {
	// BuildAudioClient acquires a device client handle. The caller owns the
	// returned client and must Release it exactly once.
	BuildAudioClient() (DeviceClient, error)

	// Release frees the endpoint's own resources. Device clients already
	// handed out stay valid until released themselves.
	Release()
}

// DeviceClient is the wire-level audio client surface the session drives.
// All methods translate device-invalidated result codes into errors wrapping
// ErrDeviceInvalidated; every other non-success code comes back verbatim.
type DeviceClient interface {
	// IsFormatSupported asks whether the candidate format works in shared
	// mode. When the answer is FormatSubstituted, the returned format is the
	// device's counter-offer.
	IsFormatSupported(candidate WireFormat) (FormatSupport, *WireFormat, error)

	// Initialize sets up the device stream in shared mode with the given
	// buffer duration hint and the resolved format.
	Initialize(bufferDuration time.Duration, format WireFormat) error

	// BufferSize returns the device ring buffer capacity in frames.
	BufferSize() (uint32, error)

	// RenderService obtains the render client used to claim writable spans.
	// The caller owns the returned client and must Release it exactly once.
	RenderService() (RenderClient, error)

	// CurrentPadding returns the number of frames queued in the ring buffer
	// and not yet consumed by the device.
	CurrentPadding() (uint32, error)

	Start() error
	Stop() error
	Release()
}

// RenderClient claims and commits writable spans of the device ring buffer.
// The device enforces first-claimed-first-committed ordering, so at most one
// claim may be outstanding at any time.
type RenderClient interface {
	// AcquireBuffer claims frames for writing and returns the raw writable
	// region, sized frames x bytes-per-frame.
	AcquireBuffer(frames uint32) ([]byte, error)

	// CommitBuffer commits a previously acquired claim back to the device.
	CommitBuffer(frames uint32) error

	Release()
}
