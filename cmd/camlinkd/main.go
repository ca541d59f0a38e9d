// camlinkd discovers cameras on USB, the local network and BLE, keeps a
// live connection to each one and exposes them over MQTT, a REST and
// WebSocket API, InfluxDB and Prometheus.
//
// Run with -issue-token to mint an API bearer token from the configured
// secret and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/camlink-core/internal/api"
	"github.com/nerrad567/camlink-core/internal/audit"
	"github.com/nerrad567/camlink-core/internal/auth"
	"github.com/nerrad567/camlink-core/internal/bridge"
	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
	"github.com/nerrad567/camlink-core/internal/infrastructure/database"
	"github.com/nerrad567/camlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/camlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/camlink-core/internal/infrastructure/metrics"
	"github.com/nerrad567/camlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/registry"
	"github.com/nerrad567/camlink-core/internal/transport"
	"github.com/nerrad567/camlink-core/internal/transport/ble"
	"github.com/nerrad567/camlink-core/internal/transport/loopback"
	"github.com/nerrad567/camlink-core/internal/transport/netlink"
	"github.com/nerrad567/camlink-core/internal/transport/serial"
	"github.com/nerrad567/camlink-core/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	issue := flag.String("issue-token", "", "print an API token for this subject and exit")
	role := flag.String("role", string(auth.RoleOperator), "role of the issued token (viewer, operator, admin)")
	ttl := flag.Duration("ttl", 0, "lifetime of the issued token (default: security.jwt.access_token_ttl minutes)")
	flag.Parse()

	if *issue != "" {
		if err := issueToken(os.Stdout, config.Path(), *issue, auth.Role(*role), *ttl); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// issueToken writes a signed bearer token for subject.
func issueToken(w io.StringWriter, configPath, subject string, role auth.Role, ttl time.Duration) error {
	if !auth.IsValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}
	token, err := auth.GenerateToken(subject, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	_, err = w.WriteString(token + "\n")
	return err
}

// run is the daemon, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT or SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting camlinkd", "version", version, "commit", commit, "build_date", date)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // shutdown path
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	health := map[string]api.HealthChecker{"database": db}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		health["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	promReg := metrics.NewRegistry()
	collectors := metrics.New(promReg)

	g, gctx := errgroup.WithContext(ctx)

	transports, intervals, err := buildTransports(gctx, cfg, log)
	if err != nil {
		return err
	}
	if len(transports) == 0 {
		return errors.New("no transport family is enabled")
	}

	reg := registry.New(registry.Options{
		Transports: transports,
		Intervals:  intervals,
		Device: device.Options{
			Logger:         log.With("component", "device"),
			Metrics:        collectors,
			QueueDepth:     cfg.Device.QueueDepth,
			RefreshPeriod:  cfg.Device.RefreshPeriod,
			ChunkSize:      cfg.Device.ChunkSize,
			DefaultTimeout: cfg.Device.DefaultTimeout,
		},
		HandshakeTimeout: cfg.Discovery.HandshakeTimeout,
		Logger:           log.With("component", "registry"),
		Metrics:          collectors,
	})
	defer func() {
		if closeErr := reg.Close(); closeErr != nil {
			log.Error("error closing registry", "error", closeErr)
		}
	}()

	hub := api.NewHub(cfg.WebSocket, log)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	bopts := bridge.Options{
		Registry:    reg,
		Audit:       auditRepo,
		WS:          hub,
		Metrics:     collectors,
		Logger:      log.With("component", "bridge"),
		ResourceDir: cfg.Device.ResourceDir,
	}
	if mqttClient != nil {
		bopts.MQTT = mqttClient
	}
	if influxClient != nil {
		bopts.TSDB = influxClient
	}
	br, err := bridge.New(bopts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := br.Start(gctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer br.Stop()

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Registry: reg,
			Audit:    auditRepo,
			Pusher:   br,
			Metrics:  metrics.Handler(promReg),
			Health:   health,
			Hub:      hub,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := reg.Start(gctx); err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}
	log.Info("discovery started", "families", reg.Families())

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("camlinkd stopped")
	return nil
}

// buildTransports creates one transport per enabled family. Simulated
// cameras, when enabled, are plugged into the loopback hub and tick until
// ctx is done.
func buildTransports(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]transport.Transport, map[transport.Family]time.Duration, error) {
	var out []transport.Transport
	intervals := make(map[transport.Family]time.Duration)
	d := cfg.Discovery

	if d.USB.Enabled {
		out = append(out, serial.New(serial.Options{
			VendorIDs: d.USB.VendorIDs,
			BaudRate:  d.USB.BaudRate,
			Logger:    log.With("transport", "usb"),
		}))
		intervals[transport.FamilyUSB] = d.USB.Interval
	}

	if d.Network.Enabled {
		out = append(out, netlink.New(netlink.Options{
			DiscoveryPort:     d.Network.DiscoveryPort,
			DevicePort:        d.Network.DevicePort,
			BroadcastAddress:  d.Network.BroadcastAddress,
			StaticHosts:       d.Network.StaticHosts,
			ListenWindow:      d.Network.ListenWindow,
			HeartbeatInterval: d.Network.HeartbeatInterval,
			AllowList:         d.Network.AllowList,
			Logger:            log.With("transport", "network"),
		}))
		intervals[transport.FamilyNetwork] = d.Network.Interval
	}

	if d.BLE.Enabled {
		adapter, err := ble.NewAdapter(ble.UUIDs{})
		if err != nil {
			return nil, nil, fmt.Errorf("ble adapter: %w", err)
		}
		out = append(out, ble.New(adapter, ble.Options{
			ScanWindow: d.BLE.ScanWindow,
			NamePrefix: d.BLE.NamePrefix,
			Logger:     log.With("transport", "ble"),
		}))
		intervals[transport.FamilyBLE] = d.BLE.Interval
	}

	if d.Loopback.Enabled {
		hub := loopback.NewHub("")
		for i := range d.Loopback.Devices {
			sim, err := newSimCamera(i)
			if err != nil {
				return nil, nil, err
			}
			hub.Plug(sim)
			sim.StartTicking(d.Loopback.TickInterval, ctx.Done())
		}
		out = append(out, hub)
		intervals[transport.FamilyLoopback] = d.Loopback.Interval
		log.Info("simulation mode", "devices", d.Loopback.Devices)
	}

	return out, intervals, nil
}

var simProducts = []device.ProductType{device.ProductTiny2, device.ProductMeet, device.ProductTailAir}

// newSimCamera builds the i-th simulated camera, cycling through one
// product per status layout.
func newSimCamera(i int) (*loopback.SimDevice, error) {
	product := simProducts[i%len(simProducts)]
	sn := fmt.Sprintf("SIM%05d", i+1)

	info := protocol.DeviceInfo{
		ProductType: uint8(product),
		SN:          sn,
		Name:        fmt.Sprintf("sim-%s-%d", product, i+1),
		Version:     version,
	}
	copy(info.UUID[:], "sim-uuid-"+sn)

	raw, err := device.DefaultStatus(product.Layout()).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("sim status: %w", err)
	}
	return loopback.NewSimDevice(fmt.Sprintf("sim%d", i), info, raw), nil
}
