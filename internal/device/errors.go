package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or IMEI does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or IMEI
	// already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidIMEI is returned when an IMEI is empty or changes on update.
	ErrInvalidIMEI = errors.New("device: invalid imei")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: invalid name")
)
