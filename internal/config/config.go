package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/station"
)

// Config holds all application configuration.
type Config struct {
	Interface  string
	MockMode   bool
	StationMAC string

	// Target BSS. An empty BSSID selects the simulated AP.
	SSID    string
	BSSID   string
	Channel int

	// Station timeouts, in beacon periods.
	AuthFailureTimeout   uint32
	AssocTimeout         uint32
	SignalReportInterval uint32
	AutoDeauthBudget     uint32
	MinOnChannelDwell    uint32
	ListenInterval       uint16

	TxBuffers  int
	EventQueue int

	// Off-channel scanning. A zero interval disables it.
	ScanInterval time.Duration
	ScanDwell    time.Duration
	ScanChannels []int

	Addr   string
	DBPath string
	Debug  bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse is Load with explicit arguments.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	def := station.DefaultConfig()

	// Defaults and Environment Variables
	cfg.Interface = getEnv("WSTA_INTERFACE", "wlan0mon")
	cfg.MockMode = getEnvBool("WSTA_MOCK", !interfaceExists(cfg.Interface))
	cfg.StationMAC = getEnv("WSTA_STATION_MAC", "02:77:73:74:61:01")
	cfg.SSID = getEnv("WSTA_SSID", "wsta-lab")
	cfg.BSSID = getEnv("WSTA_BSSID", "")
	cfg.Channel = getEnvInt("WSTA_CHANNEL", 6)
	cfg.AuthFailureTimeout = uint32(getEnvInt("WSTA_AUTH_TIMEOUT", int(def.AuthFailureTimeout)))
	cfg.AssocTimeout = uint32(getEnvInt("WSTA_ASSOC_TIMEOUT", int(def.AssocTimeout)))
	cfg.SignalReportInterval = uint32(getEnvInt("WSTA_SIGNAL_REPORT", int(def.SignalReportInterval)))
	cfg.AutoDeauthBudget = uint32(getEnvInt("WSTA_AUTO_DEAUTH", int(def.AutoDeauthBudget)))
	cfg.MinOnChannelDwell = uint32(getEnvInt("WSTA_MIN_DWELL", int(def.MinOnChannelDwell)))
	cfg.ListenInterval = uint16(getEnvInt("WSTA_LISTEN_INTERVAL", 10))
	cfg.TxBuffers = getEnvInt("WSTA_TX_BUFFERS", 32)
	cfg.EventQueue = getEnvInt("WSTA_EVENT_QUEUE", 256)
	cfg.ScanInterval = getEnvDuration("WSTA_SCAN_INTERVAL", 0)
	cfg.ScanDwell = getEnvDuration("WSTA_SCAN_DWELL", 50*time.Millisecond)
	scanStr := getEnv("WSTA_SCAN_CHANNELS", "1,6,11")
	cfg.Addr = getEnv("WSTA_ADDR", ":8080")
	if db, ok := os.LookupEnv("WSTA_DB"); ok {
		cfg.DBPath = db
	} else {
		cfg.DBPath = getDefaultDBPath()
	}
	cfg.Debug = getEnvBool("WSTA_DEBUG", false)

	var authTimeout, assocTimeout, signalReport, autoDeauth, minDwell, listenInterval uint
	authTimeout = uint(cfg.AuthFailureTimeout)
	assocTimeout = uint(cfg.AssocTimeout)
	signalReport = uint(cfg.SignalReportInterval)
	autoDeauth = uint(cfg.AutoDeauthBudget)
	minDwell = uint(cfg.MinOnChannelDwell)
	listenInterval = uint(cfg.ListenInterval)

	// Command Line Flags (Override Env)
	fs := flag.NewFlagSet("wsta", flag.ContinueOnError)
	fs.StringVar(&cfg.Interface, "i", cfg.Interface, "Network interface in monitor mode")
	fs.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run against the simulated access point")
	fs.StringVar(&cfg.StationMAC, "mac", cfg.StationMAC, "Station MAC address")
	fs.StringVar(&cfg.SSID, "ssid", cfg.SSID, "SSID to join")
	fs.StringVar(&cfg.BSSID, "bssid", cfg.BSSID, "BSSID to join (empty selects the simulated AP)")
	fs.IntVar(&cfg.Channel, "channel", cfg.Channel, "Primary channel of the BSS")
	fs.UintVar(&authTimeout, "auth-timeout", authTimeout, "Authentication timeout in beacon periods")
	fs.UintVar(&assocTimeout, "assoc-timeout", assocTimeout, "Association timeout in beacon periods")
	fs.UintVar(&signalReport, "signal-report", signalReport, "Signal report interval in beacon periods")
	fs.UintVar(&autoDeauth, "auto-deauth", autoDeauth, "Beacon loss budget in beacon periods")
	fs.UintVar(&minDwell, "min-dwell", minDwell, "Minimum on-channel time after an excursion, in beacon periods")
	fs.UintVar(&listenInterval, "listen-interval", listenInterval, "Listen interval in beacon periods")
	fs.IntVar(&cfg.TxBuffers, "tx-buffers", cfg.TxBuffers, "Transmit buffer pool size")
	fs.IntVar(&cfg.EventQueue, "queue", cfg.EventQueue, "Station event queue depth")
	fs.DurationVar(&cfg.ScanInterval, "scan-interval", cfg.ScanInterval, "Time on channel between scan excursions (0 disables)")
	fs.DurationVar(&cfg.ScanDwell, "scan-dwell", cfg.ScanDwell, "Time spent on each scan channel")
	fs.StringVar(&scanStr, "scan-channels", scanStr, "Scan channels (comma separated)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite event journal (empty to disable)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AuthFailureTimeout = uint32(authTimeout)
	cfg.AssocTimeout = uint32(assocTimeout)
	cfg.SignalReportInterval = uint32(signalReport)
	cfg.AutoDeauthBudget = uint32(autoDeauth)
	cfg.MinOnChannelDwell = uint32(minDwell)
	cfg.ListenInterval = uint16(listenInterval)

	channels, err := parseChannels(scanStr)
	if err != nil {
		return nil, err
	}
	cfg.ScanChannels = channels

	return cfg, cfg.Validate()
}

// Validate rejects configurations the station cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !c.MockMode && !domain.IsValidInterface(c.Interface) {
		errs = append(errs, fmt.Errorf("invalid interface %q", c.Interface))
	}
	if !domain.IsValidStationMAC(c.StationMAC) {
		errs = append(errs, fmt.Errorf("invalid station MAC %q", c.StationMAC))
	}
	if c.BSSID != "" && !domain.IsValidMAC(c.BSSID) {
		errs = append(errs, fmt.Errorf("invalid BSSID %q", c.BSSID))
	}
	if !domain.IsValidSSID(c.SSID) {
		errs = append(errs, fmt.Errorf("SSID longer than %d bytes", domain.MaxSSIDLen))
	}
	if !domain.IsValidChannel(c.Channel) {
		errs = append(errs, fmt.Errorf("invalid channel %d", c.Channel))
	}
	if c.AuthFailureTimeout == 0 || c.AssocTimeout == 0 || c.SignalReportInterval == 0 || c.AutoDeauthBudget == 0 {
		errs = append(errs, errors.New("station timeouts must be positive"))
	}
	if c.ListenInterval == 0 {
		errs = append(errs, errors.New("listen interval must be positive"))
	}
	if c.TxBuffers <= 0 || c.EventQueue <= 0 {
		errs = append(errs, errors.New("tx buffers and event queue must be positive"))
	}
	if c.ScanInterval < 0 || (c.ScanInterval > 0 && c.ScanDwell <= 0) {
		errs = append(errs, errors.New("scan interval and dwell must be positive"))
	}
	return errors.Join(errs...)
}

// StationConfig returns the station timeouts.
func (c *Config) StationConfig() station.Config {
	return station.Config{
		AuthFailureTimeout:   c.AuthFailureTimeout,
		AssocTimeout:         c.AssocTimeout,
		SignalReportInterval: c.SignalReportInterval,
		AutoDeauthBudget:     c.AutoDeauthBudget,
		MinOnChannelDwell:    c.MinOnChannelDwell,
	}
}

func parseChannels(s string) ([]int, error) {
	var channels []int
	if s == "" {
		return channels, nil
	}
	parts := strings.Split(s, ",")
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		ch, err := strconv.Atoi(trimmed)
		if err != nil || ch <= 0 {
			return nil, fmt.Errorf("invalid scan channel %q", trimmed)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func interfaceExists(iface string) bool {
	_, err := os.Stat(filepath.Join("/sys/class/net", iface))
	return err == nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns the default journal path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "wsta.db"
	}

	wstaDir := filepath.Join(home, ".wsta")
	if err := os.MkdirAll(wstaDir, 0755); err != nil {
		log.Printf("Warning: Could not create .wsta directory, using current dir: %v", err)
		return "wsta.db"
	}

	return filepath.Join(wstaDir, "wsta.db")
}
