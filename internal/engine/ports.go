package engine

import "go.bug.st/serial/enumerator"

// PortInfo describes one serial port discovered on the host, per the
// list_ports tool output shape of §6. Port enumeration is a pass-through
// to the host OS driver; this engine does no filtering or caching of its
// own.
type PortInfo struct {
	Port        string
	Description string
	HardwareID  string
}

// ListPorts enumerates the serial ports visible to the host OS.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, &Error{Code: CodeConnection, Err: err}
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		hwID := d.SerialNumber
		if d.IsUSB {
			hwID = "USB VID:PID=" + d.VID + ":" + d.PID
			if d.SerialNumber != "" {
				hwID += " SNR=" + d.SerialNumber
			}
		}
		ports = append(ports, PortInfo{
			Port:        d.Name,
			Description: d.Product,
			HardwareID:  hwID,
		})
	}
	return ports, nil
}
