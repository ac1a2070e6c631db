package rawsock

import (
	"fmt"
	"os"
	"strings"
)

// capNetRaw is the CAP_NET_RAW bit in the effective capability mask.
const capNetRaw = 1 << 13

// CheckPrivileges reports whether the process may open raw sockets.
// Returns nil if privileged, otherwise an error with a helpful message.
func CheckPrivileges() error {
	if os.Geteuid() == 0 {
		return nil
	}

	if HasNetRawCapability() {
		return nil
	}

	return fmt.Errorf("pmtud requires elevated privileges for raw socket access.\n\nRun with: sudo %s", strings.Join(os.Args, " "))
}

// HasNetRawCapability checks /proc/self/status for CAP_NET_RAW. It is always
// false where /proc is unavailable.
func HasNetRawCapability() bool {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}
	return parseCapNetRaw(string(data))
}

func parseCapNetRaw(status string) bool {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return false
		}
		var mask uint64
		if _, err := fmt.Sscanf(fields[1], "%x", &mask); err != nil {
			return false
		}
		return mask&capNetRaw != 0
	}
	return false
}
