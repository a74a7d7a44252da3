package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/lcalzada-xor/wsta/internal/adapters/device"
	"github.com/lcalzada-xor/wsta/internal/adapters/driver"
	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/adapters/hopping"
	"github.com/lcalzada-xor/wsta/internal/adapters/simap"
	"github.com/lcalzada-xor/wsta/internal/adapters/storage"
	"github.com/lcalzada-xor/wsta/internal/adapters/web/handlers"
	webserver "github.com/lcalzada-xor/wsta/internal/adapters/web/server"
	"github.com/lcalzada-xor/wsta/internal/config"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
	"github.com/lcalzada-xor/wsta/internal/core/services/station"
	"github.com/lcalzada-xor/wsta/internal/core/services/timer"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

const reconnectDelay = 3 * time.Second

// Application holds the core components of the application.
// It acts as the Facade for the entire system, orchestrating the station,
// its radio and the debug surface.
type Application struct {
	Config    *config.Config
	Clock     clock.Clock
	Timers    *timer.Manager
	Station   *station.Station
	Loop      *station.Loop
	Device    ports.Device
	AP        *simap.AccessPoint
	Connector *Connector
	Recorder  *storage.Recorder
	Journal   *storage.SQLiteJournal
	Scheduler *hopping.Scheduler
	WebServer *webserver.Server
	Driver    *driver.Driver

	pcap *device.PcapDevice
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	return newApplication(cfg, clock.NewClock(), driver.New())
}

func newApplication(cfg *config.Config, clk clock.Clock, drv *driver.Driver) (*Application, error) {
	app := &Application{
		Config: cfg,
		Clock:  clk,
		Driver: drv,
	}

	if err := app.bootstrap(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()

	if err := app.initStorage(); err != nil {
		return err
	}

	addr, err := domain.ParseMAC(app.Config.StationMAC)
	if err != nil {
		return fmt.Errorf("station MAC: %w", err)
	}

	// 2. SME chain: journal and websocket see every message before the connector
	app.Connector = NewConnector(app.target, app.Config.ListenInterval, reconnectDelay, app.Clock)
	app.Recorder = storage.NewRecorder(app.Connector, journalPort(app.Journal), app.Clock)

	// 3. Radio and station
	app.Timers = timer.New(app.Clock)
	if err := app.initDevice(addr); err != nil {
		return err
	}
	app.Station = station.New(app.Config.StationConfig(), app.Device, app.Recorder, app.Timers,
		station.WithPool(frame.NewPool(app.Config.TxBuffers)),
		station.WithDebug(app.Config.Debug),
	)
	app.Loop = station.NewLoop(app.Station, app.Timers, app.Config.EventQueue)
	if app.AP != nil {
		app.AP.SetSink(app.Loop.PostWlanFrame)
	}

	// 4. Scanning and servers
	app.initScheduler()
	app.initServers()

	if app.Config.MockMode {
		log.Println("Mock Mode Active: station is talking to a simulated access point")
	}
	return nil
}

func (app *Application) initStorage() error {
	if app.Config.DBPath == "" {
		log.Println("[JOURNAL] Event journal disabled")
		return nil
	}
	if app.Config.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	journal, err := storage.NewSQLiteJournal(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init event journal: %w", err)
	}
	app.Journal = journal
	return nil
}

// journalPort avoids storing a typed nil in the interface.
func journalPort(j *storage.SQLiteJournal) ports.EventJournal {
	if j == nil {
		return nil
	}
	return j
}

func (app *Application) initDevice(addr domain.MacAddr) error {
	if app.Config.MockMode {
		apCfg := simap.DefaultConfig()
		apCfg.SSID = app.Config.SSID
		apCfg.Channel = domain.Channel{Primary: uint8(app.Config.Channel)}
		if app.Config.BSSID != "" {
			bssid, err := domain.ParseMAC(app.Config.BSSID)
			if err != nil {
				return fmt.Errorf("BSSID: %w", err)
			}
			apCfg.Bssid = bssid
		}
		// The sink is attached once the loop exists
		app.AP = simap.New(apCfg, nil)

		mock := device.NewMockDevice(addr, device.DefaultCapabilities())
		mock.OnSend = app.AP.Receive
		app.Device = mock
		return nil
	}

	iface := app.Config.Interface
	log.Println("[DEVICE] Stopping conflicting network services...")
	if err := app.Driver.KillConflictingProcesses(); err != nil {
		log.Printf("[DEVICE] Warning: %v", err)
	}
	if err := app.Driver.EnableMonitorMode(iface, app.Config.Channel); err != nil {
		return fmt.Errorf("failed to enable monitor mode on %s: %w", iface, err)
	}

	caps, err := app.Driver.RestrictCapabilities(iface, device.DefaultCapabilities())
	if err != nil {
		log.Printf("[DEVICE] Could not read band support for %s, assuming all bands: %v", iface, err)
	}

	debug := app.Config.Debug
	pcapDev, err := device.OpenPcapDevice(iface, addr, caps, app.Driver, device.WithEthernetSink(func(eth []byte) error {
		if debug {
			log.Printf("[DEVICE] Delivered %d byte Ethernet frame", len(eth))
		}
		return nil
	}))
	if err != nil {
		return err
	}
	app.pcap = pcapDev
	app.Device = pcapDev
	return nil
}

func (app *Application) initScheduler() {
	cfg := hopping.Config{
		Interface: app.Config.Interface,
		Channels:  app.Config.ScanChannels,
		Interval:  app.Config.ScanInterval,
		Dwell:     app.Config.ScanDwell,
	}

	var switcher ports.ChannelSwitcher = app.Driver
	if app.Config.MockMode {
		switcher = deviceSwitcher{app.Device}
	}
	app.Scheduler = hopping.NewScheduler(cfg, app.homeChannel, switcher, app.Loop, app.Clock)
}

// homeChannel is the channel of the associated BSS, or 0.
func (app *Application) homeChannel() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := app.Loop.Snapshot(ctx)
	if err != nil || snap.State != domain.StateAssociated || snap.Join == nil {
		return 0
	}
	return int(snap.Join.Bss.Channel.Primary)
}

func (app *Application) initServers() {
	var ap handlers.AccessPoint
	if app.AP != nil {
		ap = app.AP
	}
	app.WebServer = webserver.NewServer(app.Config.Addr, app.Loop, app.Connector, journalPort(app.Journal), ap)
	app.Recorder.OnEvent(app.WebServer.Publish)
}

// target is the BSS the connector joins.
func (app *Application) target() (domain.BssDescription, error) {
	if app.AP != nil {
		return app.AP.BssDescription(), nil
	}
	if app.Config.BSSID == "" {
		return domain.BssDescription{}, errors.New("no BSSID configured")
	}
	bssid, err := domain.ParseMAC(app.Config.BSSID)
	if err != nil {
		return domain.BssDescription{}, err
	}
	ch := domain.Channel{Primary: uint8(app.Config.Channel)}
	return domain.BssDescription{
		Bssid:          bssid,
		SSID:           app.Config.SSID,
		BssType:        domain.BssInfrastructure,
		BeaconPeriod:   100,
		DtimPeriod:     1,
		Channel:        ch,
		Rates:          app.Device.Capabilities().Bands[ch.Band()].Rates,
		CapabilityInfo: domain.CapEss,
	}, nil
}

// Run starts the application components and manages their execution lifecycle.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting WSTA components...")
	app.Connector.Bind(ctx, app.Loop)

	errChan := make(chan error, 4)

	go func() {
		if err := app.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("station loop error: %w", err)
		}
	}()

	if app.AP != nil {
		go app.AP.Run(ctx, app.Clock)
	}
	if app.pcap != nil {
		go func() {
			if err := app.pcap.Listen(ctx, app.Loop.PostWlanFrame); err != nil {
				errChan <- fmt.Errorf("capture error: %w", err)
			}
		}()
	}

	go app.Scheduler.Run(ctx)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	go func() {
		if err := app.Connector.Connect(ctx); err != nil {
			log.Printf("[STA] Initial connect failed: %v", err)
		}
	}()

	slog.Info("WSTA Ready. Press Ctrl+C to terminate.")

	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}

	return app.cleanup()
}

func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")

	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.pcap != nil {
		app.pcap.Close()
	}
	if app.Journal != nil {
		if err := app.Journal.Close(); err != nil {
			return err
		}
	}
	return nil
}

// RestoreNetwork reverts changes made to network interfaces and services.
func (app *Application) RestoreNetwork() {
	if app.Config.MockMode {
		return
	}

	log.Println("[DEVICE] Restoring networking infrastructure...")
	app.Driver.DisableMonitorMode(app.Config.Interface)
	if err := app.Driver.RestoreNetworkServices(); err != nil {
		log.Printf("[DEVICE] Error restoring system services: %v", err)
	}
}

// deviceSwitcher tunes a ports.Device for the scan scheduler in mock mode.
type deviceSwitcher struct {
	dev ports.Device
}

func (s deviceSwitcher) SetChannel(_ string, channel int) error {
	return s.dev.SetChannel(domain.Channel{Primary: uint8(channel)})
}
