// roomba: runs a set of ground and obstacle robots at a fixed control rate
// and exposes their activation state over HTTP and the message bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-roomba/internal/config"
	"github.com/teslashibe/go-roomba/internal/log"
	"github.com/teslashibe/go-roomba/pkg/arena"
	"github.com/teslashibe/go-roomba/pkg/debug"
	"github.com/teslashibe/go-roomba/pkg/hub"
	"github.com/teslashibe/go-roomba/pkg/journal"
	"github.com/teslashibe/go-roomba/pkg/messaging"
	"github.com/teslashibe/go-roomba/pkg/motion"
	"github.com/teslashibe/go-roomba/pkg/reporter"
	"github.com/teslashibe/go-roomba/pkg/robot"
	"github.com/teslashibe/go-roomba/pkg/snapshot"
	"github.com/teslashibe/go-roomba/pkg/web"
)

var version = "0.1.0"

var (
	configPath = flag.String("config", "roomba.yaml", "Path to YAML config")
	activate   = flag.Bool("active", false, "Start every robot active regardless of config")
	debugMode  = flag.Bool("debug", false, "Enable debug logging and request logs")
	debugTicks = flag.Bool("debug-ticks", false, "Print every control loop tick (very verbose)")
)

func main() {
	flag.Parse()

	debug.Enabled = *debugMode
	debug.Ticks = *debugTicks

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if *debugMode {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("🤖 Roomba v" + version)
	fmt.Printf("   %d robot(s) at %.0f Hz\n", len(cfg.Robots), cfg.LoopHz)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("roomba stopped", "error", err)
		os.Exit(1)
	}
	fmt.Println("👋 Goodbye")
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := arena.NewRegistry(cfg.Arena.StaleAfter)

	states := hub.New("state", log.Component("hub"))
	go states.Run(ctx)

	publishers := reporter.Multi{reporter.NewLog(log.Component("status")), states}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		store := snapshot.NewStore(rdb, cfg.Redis.TTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable, snapshots will be retried per tick", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()

		async := reporter.NewAsync("redis", store, 0, log.Component("snapshot"))
		defer async.Close()
		go async.Run(ctx)
		publishers = append(publishers, async)
		fmt.Printf("🗄️  Redis snapshots: %s\n", cfg.Redis.Addr)
	}

	var events robot.EventSink
	var eventReader web.EventReader
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, log.L())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		written := make(chan struct{})
		go func() {
			j.Run(ctx)
			close(written)
		}()
		defer func() {
			cancel()
			<-written
			j.Close()
		}()
		events, eventReader = j, j
		fmt.Printf("📒 Event journal: %s\n", cfg.Journal.Path)
	}

	var bridge *messaging.Bridge
	if cfg.Messaging.Enabled() {
		client, err := messaging.NewClient(cfg.Messaging, log.Component("messaging"))
		if err != nil {
			return err
		}
		defer client.Close()
		timeout := cfg.Messaging.ConnectTimeout
		if timeout <= 0 {
			timeout = messaging.DefaultConfig().ConnectTimeout
		}
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		err = client.Connect(connectCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.Messaging.Backend, err)
		}
		bridge = messaging.NewBridge(client, client.Topics(), registry, cfg.Messaging.OutboxSize, log.L())
		go bridge.Run(ctx)
		publishers = append(publishers, bridge)
		fmt.Printf("📡 Message bus: %s\n", cfg.Messaging.Backend)
	}

	fleet := robot.NewFleet()
	for _, rc := range cfg.Robots {
		id, err := rc.Identity()
		if err != nil {
			return err
		}
		option, err := motion.ParseOption(rc.Model)
		if err != nil {
			return err
		}

		model := motion.New(id, rc.Pose(), option, cfg.Period())
		model.SetPoseSink(registry)
		registry.UpdatePose(id, rc.Pose())

		deps := robot.Deps{
			Model:     model,
			Sensors:   registry,
			Publisher: publishers,
			Logger:    log.ForRobot(id),
		}
		if events != nil {
			deps.Events = events
		}
		ctrl := robot.NewController(robot.Config{
			Robot:  id,
			Active: rc.Active || *activate,
			Period: cfg.Period(),
		}, deps)

		if bridge != nil {
			model.SetCommandSink(bridge)
			bridge.Register(id, ctrl)
		}
		if err := fleet.Add(ctrl); err != nil {
			return err
		}
		fmt.Printf("   %s (%s, %s)\n", id, ctrl.State(), option)
	}

	if bridge != nil {
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	var server *web.Server
	if cfg.Web.Enabled {
		web.Version = version
		deps := web.Deps{
			Fleet:   fleet,
			Arena:   registry,
			Hub:     states,
			Logger:  log.L(),
			Verbose: *debugMode,
		}
		if eventReader != nil {
			deps.Events = eventReader
		}
		server = web.NewServer(cfg.WebAddr(), deps)
		server.StartAsync()
		fmt.Printf("🌐 API: http://%s/api/robots\n", cfg.WebAddr())
	}
	fmt.Println()

	log.Info("control loops starting", "robots", fleet.Len(), "period", cfg.Period())
	fleet.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("web shutdown", "error", err)
		}
	}
	return nil
}
