package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Runner executes a command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Driver prepares a wireless interface for monitor-mode operation using the
// iw and ip tools.
type Driver struct {
	run Runner
}

// New returns a Driver that runs real commands.
func New() *Driver {
	return &Driver{run: execRunner}
}

// NewWithRunner returns a Driver that runs commands through r.
func NewWithRunner(r Runner) *Driver {
	return &Driver{run: r}
}

// PhyForInterface maps an interface to its wiphy name, e.g. "phy0".
func (d *Driver) PhyForInterface(iface string) (string, error) {
	out, err := d.run("iw", "dev")
	if err != nil {
		return "", err
	}
	return parseIwDev(out, iface)
}

// Output format:
// phy#0
//
//	Interface wlan0
func parseIwDev(out []byte, iface string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "phy#") {
			currentPhy = line
		} else if line == "Interface "+iface && currentPhy != "" {
			// "phy#0" -> "phy0"
			return strings.Replace(currentPhy, "#", "", 1), nil
		}
	}
	return "", fmt.Errorf("interface %s not found in iw dev output", iface)
}

// SupportedChannels returns the enabled channels of the interface grouped
// by band.
func (d *Driver) SupportedChannels(iface string) (map[domain.Band][]int, error) {
	phy, err := d.PhyForInterface(iface)
	if err != nil {
		return nil, err
	}
	out, err := d.run("iw", "phy", phy, "info")
	if err != nil {
		return nil, err
	}
	return parsePhyInfo(out), nil
}

// Example: * 2412 MHz [1] (20.0 dBm)
// Example: * 5180 MHz [36] (22.0 dBm) (disabled)
var reChannel = regexp.MustCompile(`\[([0-9]+)\]`)

func parsePhyInfo(out []byte) map[domain.Band][]int {
	bands := make(map[domain.Band][]int)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inFrequencies := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		// "Bitrates:" also lists lines with "*"; the block ends at the first
		// line without one.
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		matches := reChannel.FindStringSubmatch(line)
		if len(matches) < 2 {
			continue
		}
		ch, err := strconv.Atoi(matches[1])
		if err != nil || ch <= 0 {
			continue
		}
		band := domain.Channel{Primary: uint8(ch)}.Band()
		bands[band] = append(bands[band], ch)
	}

	for _, chs := range bands {
		sort.Ints(chs)
	}
	return bands
}

// RestrictCapabilities drops the bands of caps the interface cannot tune to.
func (d *Driver) RestrictCapabilities(iface string, caps domain.DeviceCapabilities) (domain.DeviceCapabilities, error) {
	supported, err := d.SupportedChannels(iface)
	if err != nil {
		return caps, err
	}
	bands := make(map[domain.Band]domain.BandCapabilities, len(caps.Bands))
	for band, bc := range caps.Bands {
		if len(supported[band]) > 0 {
			bands[band] = bc
		}
	}
	caps.Bands = bands
	return caps, nil
}

// SetChannel sets the WiFi channel for a given interface. It implements
// ports.ChannelSwitcher.
func (d *Driver) SetChannel(iface string, channel int) error {
	if channel <= 0 {
		return fmt.Errorf("invalid channel: %d", channel)
	}
	if out, err := d.run("iw", iface, "set", "channel", strconv.Itoa(channel)); err != nil {
		return fmt.Errorf("failed to set channel %d on %s: %w (%s)", channel, iface, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// KillConflictingProcesses stops NetworkManager and wpa_supplicant so they do
// not reassociate the interface behind the station's back.
func (d *Driver) KillConflictingProcesses() error {
	commands := [][]string{
		{"systemctl", "stop", "NetworkManager"},
		{"systemctl", "stop", "wpa_supplicant"},
	}
	for _, cmdParts := range commands {
		if out, err := d.run(cmdParts[0], cmdParts[1:]...); err != nil {
			return fmt.Errorf("failed to execute %s %v: %w (%s)", cmdParts[0], cmdParts[1:], err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// RestoreNetworkServices restarts NetworkManager and wpa_supplicant.
func (d *Driver) RestoreNetworkServices() error {
	commands := [][]string{
		{"systemctl", "start", "wpa_supplicant"}, // Start supplicant first usually
		{"systemctl", "start", "NetworkManager"},
	}

	var lastErr error
	for _, cmdParts := range commands {
		if out, err := d.run(cmdParts[0], cmdParts[1:]...); err != nil {
			// We try to restore everything even if one fails
			lastErr = fmt.Errorf("failed to execute %s %v: %w (%s)", cmdParts[0], cmdParts[1:], err, strings.TrimSpace(string(out)))
		}
	}
	return lastErr
}

// EnableMonitorMode puts the interface into monitor mode on channel.
func (d *Driver) EnableMonitorMode(iface string, channel int) error {
	log.Printf("[DEVICE] Enabling monitor mode on %s...", iface)
	if err := d.runCmd("ip", "link", "set", iface, "down"); err != nil {
		return err
	}
	if err := d.runCmd("iw", iface, "set", "type", "monitor"); err != nil {
		log.Printf("[DEVICE] Hint: If you see 'Device or resource busy', you may need to kill conflicting processes.")
		return err
	}
	if err := d.runCmd("ip", "link", "set", iface, "up"); err != nil {
		return err
	}
	// Not fatal: the station retunes on join
	if channel > 0 {
		d.SetChannel(iface, channel)
	}
	return nil
}

// DisableMonitorMode puts the interface back into managed mode
func (d *Driver) DisableMonitorMode(iface string) {
	log.Printf("[DEVICE] Restoring managed mode on %s...", iface)
	d.runCmd("ip", "link", "set", iface, "down")
	d.runCmd("iw", iface, "set", "type", "managed")
	d.runCmd("ip", "link", "set", iface, "up")
}

func (d *Driver) runCmd(name string, args ...string) error {
	output, err := d.run(name, args...)
	if err != nil {
		log.Printf("[DEVICE] Command failed: %s %v\nOutput: %s", name, args, string(output))
		return err
	}
	return nil
}
