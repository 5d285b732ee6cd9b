// Package app wires every subsystem into one runnable process: it loads
// configuration, builds the generation/defect-injection/delivery chain, runs
// it to completion (or until cancelled via the control plane), then scores
// the result against the corpus-level fingerprint and evaluator passes.
//
// App initializes generators/pipeline/stream-runner/sinks from config and
// exposes an HTTP control surface: health, metrics, fingerprint
// validation, and stream pause/resume/cancel.
package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"synthledger/internal/allocator"
	"synthledger/internal/amount"
	"synthledger/internal/config"
	"synthledger/internal/confidence"
	"synthledger/internal/evaluator"
	"synthledger/internal/fingerprint"
	"synthledger/internal/generators"
	"synthledger/internal/graph"
	"synthledger/internal/metrics"
	"synthledger/internal/pipeline"
	"synthledger/internal/rng"
	"synthledger/internal/sinks"
	"synthledger/internal/stream"
	"synthledger/pkg/dlq"
	"synthledger/pkg/errors"
	"synthledger/pkg/hotreload"
	"synthledger/pkg/monitoring"
	"synthledger/pkg/tracing"
	"synthledger/pkg/types"
)

// App coordinates one end-to-end generation run.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	rngSvc      *rng.Service
	alloc       *allocator.Allocator
	confidence  *confidence.Calculator
	pipe        *pipeline.Pipeline
	dup         *pipeline.DuplicateProcessor
	control     *stream.Control
	sink        types.Sink[types.Record]
	metricsSrv  *metrics.MetricsServer
	controlSrv  *http.Server

	fpExtractor *fingerprint.Extractor
	eval        *evaluator.Evaluator

	cpuMonitor *monitoring.CPUMonitor
	tracer     *tracing.TracingManager
	reloader   *hotreload.ConfigReloader

	entries []generators.JournalEntry // collected for graph/fingerprint/evaluator passes
}

// New loads and validates configFile (or defaults if empty), then builds
// every collaborator. Construction never starts goroutines; Run does.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	if lvl, parseErr := logrus.ParseLevel(cfg.App.LogLevel); parseErr == nil {
		logger.SetLevel(lvl)
	}

	rngSvc := rng.New(cfg.Generation.MasterSeed)
	alloc := allocator.New(uint64(cfg.Generation.AllocatorBase))

	confCalc, err := confidence.New(confidence.DefaultConfig(), logger)
	if err != nil {
		return nil, err
	}

	pipelineCfg := pipeline.DefaultPipelineConfig{
		DateFields:       []string{"date"},
		AmountFields:     []string{"gross_amount"},
		IdentifierFields: []string{"reference", "source_doc"},
		CaseFields:       []string{"memo", "company"},
		MissingValueRate: 0.02,
		TypoRate:         0.01,
		FormatRate:       0.03,
		DuplicateRate:    0.005,
		EncodingRate:     0.005,
	}
	pipe, dup := pipeline.NewDefaultPipeline(rngSvc, pipelineCfg)

	fpExtractor, err := fingerprint.NewExtractor(fingerprint.Config{
		EpsilonBudget:    cfg.Privacy.EpsilonBudget,
		KAnonymity:       cfg.Privacy.KAnonymity,
		WinsorizeLowPct:  cfg.Privacy.WinsorizeLowPct,
		WinsorizeHighPct: cfg.Privacy.WinsorizeHighPct,
		TopKCategories:   20,
		MasterSeed:       cfg.Generation.MasterSeed,
	}, logger)
	if err != nil {
		return nil, err
	}

	ev, err := evaluator.New(evaluator.Config{
		SignificanceThreshold: cfg.Evaluation.SignificanceThreshold,
		MetricDirections:      cfg.Evaluation.MetricDirections,
	}, logger)
	if err != nil {
		return nil, err
	}

	sink, err := buildSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	cpuMonitor := monitoring.NewCPUMonitor(monitoring.Config{
		Enabled:               cfg.Runtime.AutoThrottle,
		CheckInterval:         cfg.Runtime.CPULoadCheckInterval,
		HighLoadThreshold:     cfg.Runtime.HighLoadThreshold,
		CriticalLoadThreshold: cfg.Runtime.CriticalLoadThreshold,
		AutoThrottle:          cfg.Runtime.AutoThrottle,
		ThrottleDelay:         cfg.Runtime.ThrottleDelay,
	}, logger)

	tracer, err := tracing.NewTracingManager(tracing.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return nil, errors.ConfigurationError("init_tracing", err.Error())
	}

	reloader, err := hotreload.NewConfigReloader(hotreload.Config{
		Enabled:          cfg.HotReload.Enabled,
		WatchInterval:    cfg.HotReload.WatchInterval,
		DebounceInterval: cfg.HotReload.DebounceInterval,
		WatchFiles:       []string{configFile},
		ValidateOnReload: cfg.HotReload.ValidateOnReload,
		BackupOnReload:   cfg.HotReload.BackupOnReload,
		BackupDirectory:  cfg.HotReload.BackupDirectory,
		MaxBackups:       cfg.HotReload.MaxBackups,
		FailsafeMode:     cfg.HotReload.FailsafeMode,
	}, configFile, logger)
	if err != nil {
		return nil, errors.ConfigurationError("init_hot_reload", err.Error())
	}
	reloader.SetCallbacks(nil, func(newCfg *config.Config) {
		logger.Info("configuration file reloaded")
	}, func(reloadErr error) {
		logger.WithError(reloadErr).Warn("configuration reload failed")
	})

	return &App{
		cfg:         cfg,
		logger:      logger,
		rngSvc:      rngSvc,
		alloc:       alloc,
		confidence:  confCalc,
		pipe:        pipe,
		dup:         dup,
		control:     stream.NewControl(),
		sink:        sink,
		metricsSrv:  metrics.NewMetricsServer(fmt.Sprintf(":%d", cfg.Metrics.Port), logger),
		fpExtractor: fpExtractor,
		eval:        ev,
		cpuMonitor:  cpuMonitor,
		tracer:      tracer,
		reloader:    reloader,
	}, nil
}

func buildSink(cfg *config.Config, logger *logrus.Logger) (types.Sink[types.Record], error) {
	if len(cfg.Sinks.Kafka.Brokers) > 0 {
		dlqQueue := dlq.NewDeadLetterQueue(cfg.Sinks.DeadLetter, logger)
		if err := dlqQueue.Start(); err != nil {
			return nil, err
		}
		return sinks.NewKafkaSink(cfg.Sinks.Kafka, logger, dlqQueue)
	}
	return sinks.NewLocalFileSink(cfg.Sinks.LocalFile, logger), nil
}

// Run drives one full generation pass: it starts the metrics and control
// plane servers, streams Volume records through the defect pipeline and
// into the configured sink, then runs the fingerprint and evaluator passes
// over what was generated. It blocks until the stream completes or the
// process receives SIGINT/SIGTERM.
func (a *App) Run() error {
	if err := a.metricsSrv.Start(); err != nil {
		return errors.ResourceError("start_metrics_server", err.Error())
	}
	defer a.metricsSrv.Stop()

	if a.cfg.Server.Enabled {
		a.startControlPlane()
		defer a.controlSrv.Close()
	}

	a.cpuMonitor.Start()
	defer a.cpuMonitor.Stop()

	if err := a.reloader.Start(); err != nil {
		a.logger.WithError(err).Warn("hot-reload watcher failed to start; continuing without it")
	}
	defer a.reloader.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if shutdownErr := a.tracer.Shutdown(context.Background()); shutdownErr != nil {
			a.logger.WithError(shutdownErr).Warn("tracer shutdown failed")
		}
	}()
	go func() {
		<-ctx.Done()
		a.control.Cancel()
	}()

	if starter, ok := a.sink.(interface{ Start(context.Context) error }); ok {
		if err := starter.Start(ctx); err != nil {
			return errors.ResourceError("start_sink", err.Error())
		}
	}

	producer := a.newProducer()
	runnerCfg := stream.RunnerConfig{
		Stream: types.StreamConfig{
			BufferSize:       a.cfg.Runtime.BufferSize,
			BatchSize:        a.cfg.Runtime.BatchSize,
			ProgressInterval: a.cfg.Runtime.ProgressInterval,
			Policy:           backpressurePolicy(a.cfg.Runtime.BackpressurePolicy),
			Timeout:          a.cfg.Runtime.Timeout,
		},
		ThrottleDelay: a.cfg.Runtime.ThrottleDelay,
		HighLoad:      a.cfg.Runtime.HighLoadThreshold,
		CriticalLoad:  a.cfg.Runtime.CriticalLoadThreshold,
		AutoThrottle:  a.cfg.Runtime.AutoThrottle,
	}

	var summary types.StreamSummary
	genErr := tracing.NewInstrumentedFunction(a.tracer.GetTracer(), "generation.run").Execute(ctx, func(tc *tracing.TraceableContext) error {
		tc.SetAttribute("generation.volume", a.cfg.Generation.Volume)
		summary = stream.Run(producer, a.sink, a.control, runnerCfg, a.cpuMonitor)
		tc.SetAttribute("generation.total_items", int(summary.TotalItems))
		return nil
	})
	if genErr != nil {
		return genErr
	}
	a.logger.WithFields(logrus.Fields{
		"total_items": summary.TotalItems,
		"error_count": summary.ErrorCount,
		"dropped":     summary.DroppedCount,
	}).Info("generation run complete")

	_ = tracing.NewInstrumentedFunction(a.tracer.GetTracer(), "generation.post_passes").Execute(ctx, func(tc *tracing.TraceableContext) error {
		a.runPostGenerationPasses()
		return nil
	})
	return nil
}

func backpressurePolicy(name string) types.BackpressurePolicy {
	switch name {
	case "drop_oldest":
		return types.PolicyDropOldest
	case "drop_newest":
		return types.PolicyDropNewest
	case "buffer":
		return types.PolicyBuffer
	default:
		return types.PolicyBlock
	}
}

// newProducer alternates AP and AR invoice generation, projecting
// each posted JournalEntry into a pipeline.FieldRecord and running it
// through the defect-injection chain before handing it to the runner. Every
// generated entry is retained for the post-generation graph/fingerprint/
// evaluator passes.
func (a *App) newProducer() stream.Producer[types.Record] {
	gen := a.cfg.Generation
	start, _ := time.Parse("2006-01-02", gen.StartDate)
	end, _ := time.Parse("2006-01-02", gen.EndDate)
	if end.Before(start) {
		end = start.AddDate(0, 1, 0)
	}
	span := end.Sub(start)

	apRnd := a.rngSvc.StreamFor("generation/ap")
	arRnd := a.rngSvc.StreamFor("generation/ar")
	selectorRnd := a.rngSvc.StreamFor("generation/selector")
	patternRnd := a.rngSvc.StreamFor("generation/pattern")

	apSampler := amount.New(apRnd, defaultAmountConfig(gen.DecimalPlaces, gen.RoundNumberProb, gen.NiceNumberProb), amount.DefaultThresholdConfig())
	arSampler := amount.New(arRnd, defaultAmountConfig(gen.DecimalPlaces, gen.RoundNumberProb, gen.NiceNumberProb), amount.DefaultThresholdConfig())

	currencies := gen.Currencies
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}

	return func(seq uint64) (types.Record, bool, error) {
		if int(seq) >= gen.Volume {
			return nil, true, nil
		}

		date := start
		if span > 0 {
			date = start.Add(time.Duration(selectorRnd.Float64() * float64(span)))
		}
		currency := currencies[int(seq)%len(currencies)]
		pattern := pickPattern(patternRnd, gen.FraudPatternMix)

		var je generators.JournalEntry
		var err error
		if seq%2 == 0 {
			var inv generators.APInvoice
			inv, je, err = generators.GenerateAPInvoice(generators.APInvoiceConfig{
				Vendor:    fmt.Sprintf("VENDOR-%04d", seq%500),
				Company:   "ACME-CO",
				Currency:  currency,
				LineCount: 1 + int(seq%3),
				TaxRate:   0.08,
				Date:      date,
				TermsDays: 30,
				Amount:    defaultAmountConfig(gen.DecimalPlaces, gen.RoundNumberProb, gen.NiceNumberProb),
				Pattern:   pattern,
			}, apSampler, a.alloc, apRnd)
			_ = inv
		} else {
			var inv generators.ARInvoice
			inv, je, err = generators.GenerateARInvoice(generators.ARInvoiceConfig{
				Customer:  fmt.Sprintf("CUST-%04d", seq%500),
				Company:   "ACME-CO",
				Currency:  currency,
				LineCount: 1 + int(seq%3),
				TaxRate:   0.08,
				Date:      date,
				TermsDays: 30,
				Amount:    defaultAmountConfig(gen.DecimalPlaces, gen.RoundNumberProb, gen.NiceNumberProb),
				Pattern:   pattern,
			}, arSampler, a.alloc, arRnd)
			_ = inv
		}
		if err != nil {
			return nil, false, err
		}

		a.entries = append(a.entries, je)
		metrics.RecordGenerated(je.RecordType(), currency)

		record := fieldRecordFromJournalEntry(je)
		labels := a.pipe.Run(record, &types.ProcessContext{
			RunID:     "run",
			Seed:      gen.MasterSeed,
			Sequence:  seq,
			Timestamp: time.Now(),
		})
		for _, label := range labels {
			if q, ok := label.(types.QualityIssueLabel); ok {
				metrics.RecordLabelEmitted(string(q.Kind), fmt.Sprintf("%d", q.Severity))
			}
		}

		return record, false, nil
	}
}

func defaultAmountConfig(decimalPlaces int, roundProb, niceProb float64) amount.Config {
	return amount.Config{
		Min:                    1,
		Max:                    50000,
		DecimalPlaces:          int32(decimalPlaces),
		RoundNumberProbability: roundProb,
		NiceNumberProbability:  niceProb,
	}
}

func pickPattern(rnd *rand.Rand, mix map[string]float64) amount.FraudAmountPattern {
	if len(mix) == 0 {
		return amount.Normal
	}
	names := []amount.FraudAmountPattern{amount.Normal, amount.StatisticallyImprobable, amount.ObviousRoundNumbers, amount.ThresholdAdjacent}
	var total float64
	for _, p := range names {
		total += mix[p.String()]
	}
	if total <= 0 {
		return amount.Normal
	}
	r := rnd.Float64() * total
	var cum float64
	for _, p := range names {
		cum += mix[p.String()]
		if r <= cum {
			return p
		}
	}
	return amount.Normal
}

func fieldRecordFromJournalEntry(je generators.JournalEntry) *pipeline.FieldRecord {
	return pipeline.NewFieldRecord(je.ID, je.RecordType(), je.Date, [][2]string{
		{"company", je.Company},
		{"currency", je.Currency},
		{"reference", je.Reference},
		{"source_doc", je.SourceDoc},
		{"memo", je.Memo},
		{"gross_amount", je.DebitTotal().String()},
		{"date", je.Date.Format(time.RFC3339)},
	}, map[string]bool{"company": true, "currency": true, "gross_amount": true})
}

// runPostGenerationPasses builds a transaction graph over every entry
// collected this run, evaluates it alongside the temporal/feature passes,
// extracts a privacy-preserving fingerprint of the generated corpus, logs
// the evaluation summary, and writes the fingerprint archive to the
// configured output directory.
func (a *App) runPostGenerationPasses() {
	if len(a.entries) == 0 {
		return
	}

	g := graph.BuildTransactionGraph(a.entries)
	metrics.SetGraphSize("transaction", len(g.Nodes), len(g.Edges))

	dailyVolume := make(map[time.Time]int, len(a.entries))
	for _, je := range a.entries {
		day := time.Date(je.Date.Year(), je.Date.Month(), je.Date.Day(), 0, 0, 0, 0, time.UTC)
		dailyVolume[day]++
	}

	report := a.eval.Evaluate(evaluator.Input{
		ObservedDailyVolume: dailyVolume,
		Graph:               g,
	})
	a.logger.WithFields(logrus.Fields{
		"temporal_correlation": report.Temporal.Correlation,
		"graph_components":     report.Graph.Components,
	}).Info("evaluation pass complete")

	amounts := make([]string, 0, len(a.entries))
	currencies := make([]string, 0, len(a.entries))
	for _, je := range a.entries {
		amounts = append(amounts, je.DebitTotal().String())
		currencies = append(currencies, je.Currency)
	}
	table := fingerprint.Table{
		Name: "journal_entries",
		Columns: []fingerprint.Column{
			{Name: "gross_amount", Values: amounts},
			{Name: "currency", Values: currencies},
		},
	}
	fp := a.fpExtractor.Extract([]fingerprint.Table{table})

	outputDir := a.cfg.Sinks.LocalFile.Directory
	if outputDir == "" {
		outputDir = "."
	}
	path := outputDir + "/fingerprint.zip"
	if err := fingerprint.Write(fp, path); err != nil {
		a.logger.WithError(err).Error("failed to write fingerprint archive")
		return
	}
	a.logger.WithField("path", path).Info("fingerprint archive written")
}

// startControlPlane exposes the HTTP control surface: liveness, fingerprint
// validation, and per-run pause/resume/cancel, built on a gorilla/mux
// router.
func (a *App) startControlPlane() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/fingerprint/validate", func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path query parameter", http.StatusBadRequest)
			return
		}
		fp, err := fingerprint.Load(path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if fingerprint.VersionMismatch(fp) {
			a.logger.WithField("path", path).WithField("version", fp.Manifest.Version).
				Warn("fingerprint version mismatch")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("valid"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/stream/{id}/pause", func(w http.ResponseWriter, req *http.Request) {
		a.control.Pause()
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	r.HandleFunc("/stream/{id}/resume", func(w http.ResponseWriter, req *http.Request) {
		a.control.Resume()
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	r.HandleFunc("/stream/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
		a.control.Cancel()
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	a.controlSrv = &http.Server{Addr: addr, Handler: r}
	a.logger.WithField("addr", addr).Info("starting control plane server")
	go func() {
		if err := a.controlSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("control plane server error")
		}
	}()
}
