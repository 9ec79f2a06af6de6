// matterdemo 物态变化演示：同一组事件依次驱动参考状态机与并发状态机
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/junbin-yang/go-fsmkit/internal/config"
	"github.com/junbin-yang/go-fsmkit/pkg/config"
	"github.com/junbin-yang/go-fsmkit/pkg/lifecycle"
	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

const (
	gas    statemachine.State = "gas"
	solid  statemachine.State = "solid"
	liquid statemachine.State = "liquid"
	plasma statemachine.State = "plasma"

	boil       statemachine.Event = "boil"
	melt       statemachine.Event = "melt"
	freeze     statemachine.Event = "freeze"
	condensate statemachine.Event = "condensate"
	sublimate  statemachine.Event = "sublimate"
	deposit    statemachine.Event = "deposit"
	ionize     statemachine.Event = "ionize"
	deionize   statemachine.Event = "deionize"
)

var script = []statemachine.Event{
	ionize, freeze, sublimate, ionize, freeze, boil,
	deionize, condensate, boil, deposit, melt,
}

func main() {
	configPath := flag.String("config", "", "config file path, searched under default paths when empty")
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics on this address until SIGINT or SIGTERM")
	flag.Parse()

	cfg := appconfig.Default()
	cm := config.NewConfigManager(cfg,
		config.WithAppName("matterdemo"),
		config.WithConfigWatch(true, 0),
	)

	if err := cm.LoadConfig(*configPath); err != nil {
		if *configPath != "" || !errors.Is(err, config.ErrNotFound) {
			logger.Fatal("load config failed", logger.Err(err))
		}
		logger.Info("no config file found, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", logger.Err(err))
	}

	log := cfg.NewLogger(logger.AddCaller(), logger.AddCallerSkip(1))
	logger.ReplaceDefault(log)
	defer func() { _ = log.Sync() }()

	cm.OnChange(func(_, next interface{}) {
		level := next.(*appconfig.Config).Logger.Level
		log.SetLevel(logger.ParseLevel(level))
		log.Info("log level reloaded", logger.String("level", level))
	})

	runReference(log)

	m, err := newMatterMachine(cfg, log)
	if err != nil {
		log.Fatal("create machine failed", logger.Err(err))
	}

	mgr := lifecycle.NewManager(
		lifecycle.WithLogger(log),
		lifecycle.WithShutdownTimeout(5*time.Second),
	)
	_ = mgr.AddWorker("matter", func(ctx context.Context) error {
		runMachine(ctx, m, log)
		return nil
	})
	if *metricsAddr != "" {
		srv := newMetricsServer(*metricsAddr, m)
		_ = mgr.AddWorker("metrics", func(context.Context) error {
			log.Info("serving metrics", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, lifecycle.WithStopFunc(srv.Shutdown))
	}

	// 逆序执行：先停止配置监听，再关闭状态机
	mgr.OnShutdown(func(context.Context) error { return m.Close() })
	mgr.OnShutdown(func(context.Context) error {
		cm.Close()
		return nil
	})

	if err := mgr.Run(context.Background()); err != nil {
		log.Error("matterdemo exited with error", logger.Err(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// runReference 单线程参考实现，回调只打印新状态
func runReference(log logger.Logger) {
	log.Info("reference machine")

	fsm := statemachine.NewFSM(liquid)
	edges := []struct {
		from, to statemachine.State
		event    statemachine.Event
		verb     string
	}{
		{solid, liquid, melt, "melting"},
		{solid, gas, sublimate, "sublimating"},
		{gas, solid, deposit, "depositing"},
		{gas, liquid, condensate, "condensating"},
		{liquid, gas, boil, "boiling"},
		{liquid, solid, freeze, "freezing"},
		{gas, plasma, ionize, "ionizing"},
		{plasma, gas, deionize, "de-ionizing"},
	}
	for _, e := range edges {
		e := e
		if err := fsm.AddTransition(e.from, e.to, e.event, func() {
			log.Infof("%s... state changed to [%s]", e.verb, e.to)
		}); err != nil {
			log.Fatal("add transition failed", logger.Err(err))
		}
	}

	for _, event := range script {
		if err := fsm.On(event); err != nil {
			log.Debug("event ignored", logger.Err(err))
		}
	}
}

func newMatterMachine(cfg *appconfig.Config, log logger.Logger) (*statemachine.Machine, error) {
	changed := func(s statemachine.State) {
		log.Infof("state changed to [%s]", s)
	}

	// condensate 耗时超过看门狗超时，最终被取消
	timeout := cfg.Machine.DeferredTimeout
	transitions := []*statemachine.Transition{
		statemachine.NewTransition(melt, solid, liquid, changed),
		statemachine.NewTransition(sublimate, solid, gas, changed),
		slow(deposit, gas, solid, timeout*2/5, log),
		slow(condensate, gas, liquid, timeout*8/5, log),
		slow(boil, liquid, gas, timeout*2/5, log),
		statemachine.NewTransition(freeze, liquid, solid, changed),
		statemachine.NewTransition(ionize, gas, plasma, changed),
		statemachine.NewTransition(deionize, plasma, gas, changed),
	}
	for _, t := range transitions {
		if t.IsDeferred() {
			t.OnCompleted = changed
		}
	}

	opts := append(cfg.MachineOptions(),
		statemachine.WithID("matter"),
		statemachine.WithLogger(log),
	)
	return statemachine.NewMachine(liquid, transitions, opts...)
}

// slow 模拟耗时的物态变化，被取消时放弃交付
func slow(event statemachine.Event, from, to statemachine.State, wait time.Duration, log logger.Logger) *statemachine.Transition {
	t := statemachine.NewDeferred(event, from, func(ctx context.Context, _ statemachine.State, resolve func(statemachine.State)) {
		log.Infof("processing %s from %s", event, from)
		select {
		case <-time.After(wait):
			log.Infof("still processing %s from %s... elapsed %v", event, from, wait)
			resolve(to)
		case <-ctx.Done():
			log.Infof("processing cancelled for %s from %s", event, from)
		}
	})
	t.OnCancel = func() {
		log.Warnf("%s from %s timed out", event, from)
	}
	return t
}

// runMachine 一次性提交全部事件，按提交顺序等待结果
func runMachine(ctx context.Context, m *statemachine.Machine, log logger.Logger) {
	log.Info("concurrent machine", logger.String("id", m.ID()))

	var wg sync.WaitGroup
	wg.Add(len(script))
	for _, event := range script {
		event := event
		m.HandleFunc(event, func(r statemachine.Result) {
			defer wg.Done()
			if r.Err != nil {
				log.Info("event finished",
					logger.String("event", string(event)),
					logger.String("state", string(r.State)),
					logger.Err(r.Err),
				)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// 未完成的事件在状态机关闭时以 ErrMachineUnavailable 结束
		log.Warn("interrupted before the script finished")
		return
	}

	snap := m.Metrics()
	log.Info("machine finished",
		logger.String("state", string(m.Current())),
		logger.Int64("succeeded", snap.Succeeded),
		logger.Int64("no_match", snap.NoMatch),
		logger.Int64("cancelled", snap.Cancelled),
	)
}

// newMetricsServer 仅暴露 /metrics
func newMetricsServer(addr string, m *statemachine.Machine) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(statemachine.NewCollector(m))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
