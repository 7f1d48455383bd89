package main

import (
    "log"
    "net/http"
    "os"
    "time"

    "github.com/joho/godotenv"
    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "dronenav/internal/api"
    "dronenav/internal/assign"
    "dronenav/internal/bus"
    "dronenav/internal/config"
    "dronenav/internal/fleet"
    "dronenav/internal/maint"
    "dronenav/internal/metrics"
    "dronenav/internal/model"
    "dronenav/internal/route"
    "dronenav/internal/webhooks"
)

func main() {
    _ = godotenv.Load()

    cfg, err := config.Load(os.Getenv("FLEETD_CONFIG"))
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }

    logger := logrus.New()
    if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
        logger.SetLevel(lvl)
    }

    metrics.RegisterDefault()

    var events bus.Broker = bus.NewMemory()
    if cfg.RedisURL != "" {
        rb, err := bus.NewRedis(cfg.RedisURL)
        if err != nil {
            log.Fatalf("redis bus: %v", err)
        }
        events = rb
    }

    state := fleet.New(cfg.Fleet.Thresholds(), events, logger)
    for _, v := range cfg.Vehicles {
        specs := cfg.DefaultSpecs
        if v.Specs != nil {
            specs = *v.Specs
        }
        if err := state.Register(v.ID, specs); err != nil {
            log.Fatalf("register %s: %v", v.ID, err)
        }
    }

    // Conditions come from external collaborators; without one wired in, the
    // oracle reports calm defaults and the restriction set stays empty.
    noFly := route.CellSet{}
    oracle := route.StaticWeather{Grid: cfg.Grid, Default: route.CalmWeather()}
    planner := route.NewPlanner(cfg.Grid, oracle, noFly)
    rerouter := route.NewRerouter(planner, logger)

    engine := assign.NewEngine(state, planner, rerouter, logger)
    engine.LoadingBuffer = cfg.Assign.LoadingBuffer()

    sched := maint.NewScheduler(state, logger)
    sweeper := maint.NewWorker(sched, state)
    sweeper.Log = logger
    sweeper.Start()

    monitor := route.NewMonitor(rerouter, func() []route.VehicleFix {
        fixes := []route.VehicleFix{}
        for _, v := range state.All() {
            if v.Status == model.StatusInFlight {
                fixes = append(fixes, route.VehicleFix{ID: v.ID, Pos: v.Location})
            }
        }
        return fixes
    }, func() (route.WeatherUpdates, route.CellSet) {
        return route.WeatherUpdates{}, noFly
    })
    monitor.Interval = time.Duration(cfg.Monitor.IntervalSec) * time.Second
    monitor.Limit = rate.NewLimiter(rate.Limit(cfg.Monitor.ReplansPerSec), cfg.Monitor.Burst)
    monitor.Log = logger
    monitor.Start()

    if len(cfg.Webhooks) > 0 {
        pub := webhooks.NewPublisher(cfg.Webhooks)
        pub.Run(events, "fleet")
        wk := webhooks.NewWorker(pub.Queue)
        wk.Log = logger
        wk.Start()
    }

    server := api.NewServer(state, engine, sched, planner, rerouter, logger)
    server.DefaultSpecs = cfg.DefaultSpecs
    server.Token = cfg.APIToken
    if v := os.Getenv("FLEETD_API_TOKEN"); v != "" {
        server.Token = v
    }

    addr := cfg.Listen
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           server.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("fleetd listening on %s (%d vehicles)", addr, len(cfg.Vehicles))
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}
