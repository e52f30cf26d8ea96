package instrument

import (
	"fmt"
	"log/slog"
)

// Status is a driver status code. Zero means success.
type Status uint32

// Status codes referenced directly by this package. The full table lives in
// statusText.
const (
	StatusOK                    Status = 0x00
	StatusNotFound              Status = 0x03
	StatusOperationFailed       Status = 0x06
	StatusNotResponding         Status = 0x07
	StatusInvalidHandle         Status = 0x0C
	StatusInvalidParameter      Status = 0x0D
	StatusInvalidChannel        Status = 0x10
	StatusStreamingFailed       Status = 0x14
	StatusBusy                  Status = 0x27
	StatusInvalidSampleInterval Status = 0x2B
	StatusNotUsed               Status = 0x3F
	StatusDriverFunction        Status = 0x43
	StatusBuffersNotSet         Status = 0x46
)

type statusInfo struct {
	name        string
	description string
}

var statusText = map[Status]statusInfo{
	0x00: {"PICO_OK", "The PicoScope is functioning correctly."},
	0x01: {"PICO_MAX_UNITS_OPENED", "An attempt has been made to open more than the maximum number of units."},
	0x02: {"PICO_MEMORY_FAIL", "Not enough memory could be allocated on the host machine."},
	0x03: {"PICO_NOT_FOUND", "No Pico Technology device could be found."},
	0x04: {"PICO_FW_FAIL", "Unable to download firmware."},
	0x05: {"PICO_OPEN_OPERATION_IN_PROGRESS", "The driver is busy opening a device."},
	0x06: {"PICO_OPERATION_FAILED", "An unspecified failure occurred."},
	0x07: {"PICO_NOT_RESPONDING", "The PicoScope is not responding to commands from the PC."},
	0x08: {"PICO_CONFIG_FAIL", "The configuration information in the PicoScope is corrupt or missing."},
	0x09: {"PICO_KERNEL_DRIVER_TOO_OLD", "The kernel driver is too old to be used with the device driver."},
	0x0A: {"PICO_EEPROM_CORRUPT", "The EEPROM has become corrupt, so the device will use a default setting."},
	0x0B: {"PICO_OS_NOT_SUPPORTED", "The operating system on the PC is not supported by this driver."},
	0x0C: {"PICO_INVALID_HANDLE", "There is no device with the handle value passed."},
	0x0D: {"PICO_INVALID_PARAMETER", "A parameter value is not valid."},
	0x0E: {"PICO_INVALID_TIMEBASE", "The timebase is not supported or is invalid."},
	0x0F: {"PICO_INVALID_VOLTAGE_RANGE", "The voltage range is not supported or is invalid."},
	0x10: {"PICO_INVALID_CHANNEL", "The channel number is not valid on this device or no channels have been set."},
	0x11: {"PICO_INVALID_TRIGGER_CHANNEL", "The channel set for a trigger is not available on this device."},
	0x12: {"PICO_INVALID_CONDITION_CHANNEL", "The channel set for a condition is not available on this device."},
	0x13: {"PICO_NO_SIGNAL_GENERATOR", "The device does not have a signal generator."},
	0x14: {"PICO_STREAMING_FAILED", "Streaming has failed to start or has stopped without user request."},
	0x15: {"PICO_BLOCK_MODE_FAILED", "Block failed to start - a parameter may have been set wrongly."},
	0x16: {"PICO_NULL_PARAMETER", "A parameter that was required is NULL."},
	0x17: {"PICO_ETS_MODE_SET", "The current functionality is not available while using ETS capture mode."},
	0x18: {"PICO_DATA_NOT_AVAILABLE", "No data is available from a run block call."},
	0x19: {"PICO_STRING_BUFFER_TO_SMALL", "The buffer passed for the information was too small."},
	0x1A: {"PICO_ETS_NOT_SUPPORTED", "ETS is not supported on this device."},
	0x1B: {"PICO_AUTO_TRIGGER_TIME_TO_SHORT", "The auto trigger time is less than the time it will take to collect the pre-trigger data."},
	0x1C: {"PICO_BUFFER_STALL", "The collection of data has stalled as unread data would be overwritten."},
	0x1D: {"PICO_TOO_MANY_SAMPLES", "Number of samples requested is more than available in the current memory segment."},
	0x1E: {"PICO_TOO_MANY_SEGMENTS", "Not possible to create number of segments requested."},
	0x1F: {"PICO_PULSE_WIDTH_QUALIFIER", "A null pointer has been passed in the trigger function or one of the parameters is out of range."},
	0x20: {"PICO_DELAY", "One or more of the hold-off parameters are out of range."},
	0x21: {"PICO_SOURCE_DETAILS", "One or more of the source details are incorrect."},
	0x22: {"PICO_CONDITIONS", "One or more of the conditions are incorrect."},
	0x23: {"PICO_USER_CALLBACK", "The driver's thread is currently in the the driver's ready callback function and therefore the action cannot be carried out."},
	0x24: {"PICO_DEVICE_SAMPLING", "An attempt is being made to get stored data while streaming. Either stop streaming by calling Stop, or use GetStreamingLatestValues."},
	0x25: {"PICO_NO_SAMPLES_AVAILABLE", "Data is unavailable because a run has not been completed."},
	0x26: {"PICO_SEGMENT_OUT_OF_RANGE", "The memory segment index is out of range."},
	0x27: {"PICO_BUSY", "The device is busy so data cannot be returned yet."},
	0x28: {"PICO_STARTINDEX_INVALID", "The start time to get stored data is out of range."},
	0x29: {"PICO_INVALID_INFO", "The information number requested is not a valid number."},
	0x2A: {"PICO_INFO_UNAVAILABLE", "The handle is invalid so no information is available about the device. Only PICO_DRIVER_VERSION is available."},
	0x2B: {"PICO_INVALID_SAMPLE_INTERVAL", "The sample interval selected for streaming is out of range."},
	0x2C: {"PICO_TRIGGER_ERROR", "ETS is set but no trigger has been set. A trigger setting is required for ETS."},
	0x2D: {"PICO_MEMORY", "Driver cannot allocate memory."},
	0x2E: {"PICO_SIG_GEN_PARAM", "Incorrect parameter passed to the signal generator."},
	0x2F: {"PICO_SHOTS_SWEEPS_WARNING", "Conflict between the shots and sweeps parameters sent to the signal generator."},
	0x30: {"PICO_SIGGEN_TRIGGER_SOURCE", "A software trigger has been sent but the trigger source is not a software trigger."},
	0x31: {"PICO_AUX_OUTPUT_CONFLICT", "An a SetTrigger call has found a conflict between the trigger source and the AUX output enable."},
	0x32: {"PICO_AUX_OUTPUT_ETS_CONFLICT", "ETS mode is being used and AUX is set as an input."},
	0x33: {"PICO_WARNING_EXT_THRESHOLD_CONFLICT", "Attempt to set different EXT input thresholds set for signal generator and oscilloscope trigger."},
	0x34: {"PICO_WARNING_AUX_OUTPUT_CONFLICT", "An a SetTrigger function has set AUX as an output and the signal generator is using it as a trigger."},
	0x35: {"PICO_SIGGEN_OUTPUT_OVER_VOLTAGE", "The combined peak to peak voltage and the analog offset voltage exceed the maximum voltage the signal generator can produce."},
	0x36: {"PICO_DELAY_NULL", "NULL pointer passed as delay parameter."},
	0x37: {"PICO_INVALID_BUFFER", "The buffers for overview data have not been set while streaming."},
	0x38: {"PICO_SIGGEN_OFFSET_VOLTAGE", "The analog offset voltage is out of range."},
	0x39: {"PICO_SIGGEN_PK_TO_PK", "The analog peak-to-peak voltage is out of range."},
	0x3A: {"PICO_CANCELLED", "A block collection has been cancelled."},
	0x3B: {"PICO_SEGMENT_NOT_USED", "The segment index is not currently being used."},
	0x3C: {"PICO_INVALID_CALL", "The wrong GetValues function has been called for the collection mode in use."},
	0x3D: {"PICO_GET_VALUES_INTERRUPTED", "The operation was interrupted."},
	0x3F: {"PICO_NOT_USED", "The function is not available."},
	0x40: {"PICO_INVALID_SAMPLERATIO", "The aggregation ratio requested is out of range."},
	0x41: {"PICO_INVALID_STATE", "Device is in an invalid state."},
	0x42: {"PICO_NOT_ENOUGH_SEGMENTS", "The number of segments allocated is fewer than the number of captures requested."},
	0x43: {"PICO_DRIVER_FUNCTION", "A driver function has already been called and not yet finished. Only one call to the driver can be made at any one time."},
	0x44: {"PICO_RESERVED", "Not used"},
	0x45: {"PICO_INVALID_COUPLING", "An invalid coupling type was specified in SetChannel."},
	0x46: {"PICO_BUFFERS_NOT_SET", "An attempt was made to get data before a data buffer was defined."},
	0x47: {"PICO_RATIO_MODE_NOT_SUPPORTED", "The selected downsampling mode (used for data reduction) is not allowed."},
	0x48: {"PICO_RAPID_NOT_SUPPORT_AGGREGATION", "Aggregation was requested in rapid block mode."},
	0x49: {"PICO_INVALID_TRIGGER_PROPERTY", "An invalid parameter was passed to a SetTriggerChannelProperties."},
	0x4A: {"PICO_INTERFACE_NOT_CONNECTED", "The driver was unable to contact the oscilloscope."},
	0x4B: {"PICO_RESISTANCE_AND_PROBE_NOT_ALLOWED", "Resistance-measuring mode is not allowed in conjunction with the specified probe."},
}

// Name returns the symbolic name of the status code.
func (s Status) Name() string {
	if info, ok := statusText[s]; ok {
		return info.name
	}
	return fmt.Sprintf("STATUS_0x%X", uint32(s))
}

// Description returns the human readable meaning of the status code.
func (s Status) Description() string {
	if info, ok := statusText[s]; ok {
		return info.description
	}
	return "Unknown driver status."
}

// Error wraps a non-OK driver status with the operation that returned it.
type Error struct {
	Code   Status
	Op     string
	Serial string
}

func (e *Error) Error() string {
	if e.Serial != "" {
		return fmt.Sprintf("instrument %s: %s: %s. %s", e.Serial, e.Op, e.Code.Name(), e.Code.Description())
	}
	return fmt.Sprintf("instrument: %s: %s. %s", e.Op, e.Code.Name(), e.Code.Description())
}

// Is matches another *Error with the same code, so callers can test
// errors.Is(err, &instrument.Error{Code: instrument.StatusBusy}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// check turns a driver status into an error.
func check(serial, op string, s Status) error {
	if s == StatusOK {
		return nil
	}
	return &Error{Code: s, Op: op, Serial: serial}
}

// abort stops an acquisition that ended early. The caller's error takes
// precedence, so a failing stop is only logged.
func abort(h Handle, serial string, log *slog.Logger) {
	if err := check(serial, "stop", h.Stop()); err != nil {
		log.Warn("Stopping acquisition failed", "error", err)
	}
}
