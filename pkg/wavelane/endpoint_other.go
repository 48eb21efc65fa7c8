//go:build !windows

package wavelane

import "go.uber.org/zap"

// DefaultEndpoint has no native transport outside Windows. Sessions can
// still be constructed against any caller-provided Endpoint implementation.
func DefaultEndpoint(logger *zap.SugaredLogger) (Endpoint, error) {
	logger.Named("endpoint").Warn("No native audio transport on this platform")

	return nil, ErrPlatformUnsupported
}
