package hvac

import "errors"

// Domain-specific errors for the bridge engine.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownTopic is returned when a topic does not match the prefix or
	// names a suffix outside the property table.
	ErrUnknownTopic = errors.New("hvac: unknown topic")

	// ErrInvalidValue is returned when a command payload cannot be encoded.
	ErrInvalidValue = errors.New("hvac: invalid value")

	// ErrUnsupportedValue is returned for payloads that are valid bus values
	// but deliberately not forwarded, such as "off" on the mode topic.
	ErrUnsupportedValue = errors.New("hvac: unsupported value")

	// ErrDeviceNotFound is returned when a device name is not registered.
	ErrDeviceNotFound = errors.New("hvac: device not found")

	// ErrDiscoveryShortfall is returned when fewer devices than expected
	// were found. It is fatal.
	ErrDiscoveryShortfall = errors.New("hvac: discovery found fewer devices than expected")

	// ErrDiscoveryActive is returned when Run is called on a discovery that
	// is already running or has finished.
	ErrDiscoveryActive = errors.New("hvac: discovery already started")

	// ErrSubscribeFailed is returned when command topic subscription fails. It is fatal.
	ErrSubscribeFailed = errors.New("hvac: command subscription failed")

	// ErrQueueFull is returned when the write queue cannot accept a command.
	ErrQueueFull = errors.New("hvac: write queue full")

	// ErrExecutorStopped is returned when a device call is submitted after shutdown.
	ErrExecutorStopped = errors.New("hvac: executor stopped")
)
