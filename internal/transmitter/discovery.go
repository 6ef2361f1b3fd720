package transmitter

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// discoverPort enumerates serial ports and picks the one to open:
// prefer a port whose USB vendor/product ID matches vendorID/productID
// (case-insensitively compared, since enumerator reports hex strings);
// fall back to the first port whose OS device path contains
// "usbserial"; multiple matches pick the first and warn.
func discoverPort(vendorID, productID uint16) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	return selectPort(ports, vendorID, productID)
}

// selectPort applies the matching rule to an already-enumerated port
// list, split out from discoverPort so the rule can be exercised
// without talking to the OS.
func selectPort(ports []*enumerator.PortDetails, vendorID, productID uint16) (string, error) {
	if len(ports) == 0 {
		return "", errNoDeviceFound
	}

	wantVID := fmt.Sprintf("%04X", vendorID)
	wantPID := fmt.Sprintf("%04X", productID)

	var vidPidMatches []*enumerator.PortDetails
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, wantVID) && strings.EqualFold(p.PID, wantPID) {
			vidPidMatches = append(vidPidMatches, p)
		}
	}
	if len(vidPidMatches) > 0 {
		if len(vidPidMatches) > 1 {
			logWarnf("transmitter: multiple devices matched VID:PID %s:%s, using %s", wantVID, wantPID, vidPidMatches[0].Name)
		}
		return vidPidMatches[0].Name, nil
	}

	var fallbackMatches []string
	for _, p := range ports {
		if strings.Contains(p.Name, "usbserial") {
			fallbackMatches = append(fallbackMatches, p.Name)
		}
	}
	if len(fallbackMatches) > 0 {
		if len(fallbackMatches) > 1 {
			logWarnf("transmitter: multiple usbserial-path devices found, using %s", fallbackMatches[0])
		}
		return fallbackMatches[0], nil
	}

	return "", errNoDeviceFound
}
