package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quantmind-br/apkaudit/internal/helpers"
)

// Device selection errors
var (
	ErrNoDevice        = errors.New("no device attached")
	ErrMultipleDevices = errors.New("more than one device attached")
)

// Attached is one line of `adb devices`
type Attached struct {
	Serial string
	State  string // device, offline, unauthorized, ...
}

// Ready reports whether adb can talk to the device
func (a Attached) Ready() bool {
	return a.State == "device"
}

// ParseDevices reads `adb devices` output
func ParseDevices(output string) []Attached {
	var devices []Attached

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Attached{Serial: fields[0], State: fields[1]})
	}

	return devices
}

// ListDevices runs `adb devices`
func ListDevices(ctx context.Context, runner helpers.CommandRunner, adb string) ([]Attached, error) {
	if adb == "" {
		adb = "adb"
	}
	output, err := runner.RunCommand(ctx, adb, "devices")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ParseDevices(output), nil
}

// Select picks the target device. An explicit serial must be attached and
// ready; without one exactly one ready device must be attached.
func Select(devices []Attached, serial string) (Attached, error) {
	var ready []Attached
	for _, d := range devices {
		if serial != "" && d.Serial == serial {
			if !d.Ready() {
				return d, fmt.Errorf("device %s is %s", d.Serial, d.State)
			}
			return d, nil
		}
		if d.Ready() {
			ready = append(ready, d)
		}
	}

	if serial != "" {
		return Attached{}, fmt.Errorf("%w: %s", ErrNoDevice, serial)
	}

	switch len(ready) {
	case 0:
		return Attached{}, ErrNoDevice
	case 1:
		return ready[0], nil
	default:
		return Attached{}, fmt.Errorf("%w (%d), pass --serial", ErrMultipleDevices, len(ready))
	}
}
