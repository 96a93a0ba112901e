package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"samplemind/ai"
	"samplemind/audio"
	"samplemind/config"
	"samplemind/daw"
	"samplemind/db"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/models"
	"samplemind/similarity"
	"samplemind/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError renders a short reason for err, followed by the raw error
// when debug logging is on.
func describeError(err error) string {
	reason := ""
	switch {
	case errors.Is(err, audio.ErrFileNotFound):
		reason = "file not found"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		reason = "unsupported audio format"
	case errors.Is(err, audio.ErrDecode):
		reason = "could not decode audio"
	case errors.Is(err, audio.ErrIO):
		reason = "could not read audio file"
	case errors.Is(err, features.ErrHPSS):
		reason = "input too short for harmonic/percussive separation"
	case errors.Is(err, features.ErrFeatureExtraction):
		reason = "feature extraction failed"
	case errors.Is(err, ai.ErrNoProviderAvailable):
		reason = "no AI provider available (check API keys and rate limits)"
	case errors.Is(err, ai.ErrCancelled):
		reason = "request cancelled"
	case errors.Is(err, ai.ErrTimeout):
		reason = "request timed out"
	case errors.Is(err, ai.ErrAllProvidersFailed):
		reason = "all AI providers failed"
	case errors.Is(err, context.Canceled):
		reason = "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "request timed out"
	default:
		return err.Error()
	}
	if strings.EqualFold(utils.GetEnv("SAMPLEMIND_LOG_LEVEL", "info"), "debug") {
		return reason + ": " + err.Error()
	}
	return reason
}

// collectPaths expands directories into the audio files below them.
// Explicit file arguments are kept whatever their extension.
func collectPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audio.HasAudioExtension(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func analyzeCmd(ctx context.Context, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	depthName := cmd.String("depth", "standard", "basic, standard, detailed or professional")
	asJSON := cmd.Bool("json", false, "print the full feature record as JSON")
	noCache := cmd.Bool("no-cache", false, "skip the feature cache")
	flStudio := cmd.Bool("fl", false, "print an FL Studio preset suggestion")
	cmd.Parse(args)
	if cmd.NArg() != 1 {
		return fmt.Errorf("analyze expects exactly one path")
	}

	depth, err := features.ParseDepth(*depthName)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Analyze(ctx, cmd.Arg(0), depth, !*noCache)
	if err != nil {
		return err
	}

	if *asJSON {
		if *flStudio {
			return printJSON(map[string]any{"features": rec, "fl_studio": daw.SuggestFLStudio(rec)})
		}
		return printJSON(rec)
	}

	printSummary(rec)
	if *flStudio {
		printPreset(daw.SuggestFLStudio(rec))
	}
	return nil
}

func printSummary(rec *features.Record) {
	fmt.Printf("%s (%s, %s)\n", rec.Source.Path, rec.Format, rec.Depth)
	if b := rec.Basic; b != nil {
		fmt.Printf("  duration     %.2fs @ %d Hz, %d channel(s)\n", float64(b.Duration), b.SampleRate, b.Channels)
	}
	if r := rec.Rhythmic; r != nil {
		fmt.Printf("  tempo        %.1f BPM, %d beats, %d onsets\n", float64(r.Tempo), len(r.BeatTimes), len(r.OnsetTimes))
	}
	if t := rec.Tonal; t != nil {
		fmt.Printf("  key          %s %s (strength %.2f)\n", t.Key, t.Mode, float64(t.KeyStrength))
	}
	if rec.Spectral != nil {
		fmt.Printf("  centroid     %.0f Hz\n", rec.MeanCentroid())
	}
	for _, w := range rec.Warnings {
		fmt.Printf("  warning      %s\n", w)
	}
}

func printPreset(p daw.Preset) {
	fmt.Printf("\nFL Studio: %.0f BPM, %s, %d-step patterns\n", p.Project.Tempo, p.Project.Key, p.Project.PatternLength)
	for _, plugin := range p.Plugins {
		fmt.Printf("  %-24s %s\n", plugin.Name, plugin.Purpose)
	}
	for _, note := range p.Notes {
		fmt.Printf("  - %s\n", note)
	}
}

func batchCmd(ctx context.Context, cfg config.Config, args []string) error {
	logger := utils.GetLogger()

	cmd := flag.NewFlagSet("batch", flag.ExitOnError)
	depthName := cmd.String("depth", "standard", "analysis depth")
	workers := cmd.Int("workers", cfg.Workers, "parallel workers")
	out := cmd.String("out", "", "export records to this JSON file")
	indexPath := cmd.String("index", "", "add successful records to this library index")
	cmd.Parse(args)

	depth, err := features.ParseDepth(*depthName)
	if err != nil {
		return err
	}
	paths, err := collectPaths(cmd.Args())
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("batch found no audio files")
	}

	cfg.Workers = *workers
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(paths)),
		mpb.PrependDecorators(
			decor.Name("Analyzing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	started := time.Now()
	records := a.engine.AnalyzeMany(ctx, paths, depth, engine.BatchOptions{
		Parallel: true,
		UseCache: true,
		OnResult: func(int, *features.Record) { bar.Increment() },
	})
	p.Wait()

	failed := 0
	for _, rec := range records {
		if !rec.OK {
			failed++
			fmt.Printf("FAILED %s: %s\n", rec.Source.Path, rec.Error)
		}
	}
	stats := a.engine.Stats()
	fmt.Printf("%d files, %d failed, %d cache hits, %s\n",
		len(records), failed, stats.CacheHits, time.Since(started).Round(time.Millisecond))

	if *out != "" {
		if err := engine.Export(records, *out); err != nil {
			return err
		}
		logger.InfoContext(ctx, "records exported", slog.String("path", *out), slog.Int("count", len(records)))
	}

	if *indexPath != "" {
		return addToIndex(ctx, *indexPath, records)
	}
	return nil
}

func aiCmd(ctx context.Context, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("ai", flag.ExitOnError)
	kind := cmd.String("kind", "comprehensive", "analysis kind")
	provider := cmd.String("provider", "", "preferred provider (gemini, anthropic, openai)")
	noCache := cmd.Bool("no-cache", false, "bypass the response cache")
	depth := cmd.String("depth", "standard", "feature depth sent to the provider")
	userContext := cmd.String("context", "", "user context as a JSON object")
	withFeatures := cmd.Bool("features", false, "include the feature record in the output")
	cmd.Parse(args)
	if cmd.NArg() != 1 {
		return fmt.Errorf("ai expects exactly one path")
	}

	req := models.AIAnalyzeRequest{
		Path:        cmd.Arg(0),
		Depth:       *depth,
		Kind:        *kind,
		Provider:    *provider,
		BypassCache: *noCache,
	}
	if *userContext != "" {
		if err := json.Unmarshal([]byte(*userContext), &req.UserContext); err != nil {
			return fmt.Errorf("%w: invalid -context: %v", ai.ErrInvalidRequest, err)
		}
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := runAIAnalysis(ctx, a.engine, a.orchestrator, req, "", nil)
	if err != nil {
		return err
	}
	if *withFeatures {
		return printJSON(resp)
	}
	return printJSON(resp.Analysis)
}

func providersCmd(ctx context.Context, cfg config.Config, args []string) error {
	cfgs, err := ai.LoadProviderConfigs(cfg.ProviderConfigPath)
	if err != nil {
		return err
	}

	action := "list"
	if len(args) > 0 {
		action = args[0]
	}

	find := func(name string) (int, error) {
		id, err := ai.ParseProvider(name)
		if err != nil {
			return -1, err
		}
		for i, c := range cfgs {
			if c.Provider == id {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, name)
	}

	switch action {
	case "list":
		credentials := map[ai.ProviderID]bool{
			ai.ProviderGemini:    cfg.GeminiAPIKey != "",
			ai.ProviderAnthropic: cfg.AnthropicAPIKey != "",
			ai.ProviderOpenAI:    cfg.OpenAIAPIKey != "",
		}
		sort.SliceStable(cfgs, func(i, j int) bool { return cfgs[i].Priority < cfgs[j].Priority })
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tENABLED\tPRIORITY\tRPM\tCOST/TOKEN\tCREDENTIAL\tAFFINITY")
		for _, c := range cfgs {
			kinds := make([]string, len(c.Features))
			for i, k := range c.Features {
				kinds[i] = string(k)
			}
			fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%g\t%t\t%s\n", c.Provider, c.Enabled, c.Priority,
				c.MaxRequestsPerMinute, c.CostPerToken, credentials[c.Provider], strings.Join(kinds, ","))
		}
		return w.Flush()
	case "enable", "disable":
		if len(args) != 2 {
			return fmt.Errorf("usage: providers %s <provider>", action)
		}
		i, err := find(args[1])
		if err != nil {
			return err
		}
		cfgs[i].Enabled = action == "enable"
	case "priority":
		if len(args) != 3 {
			return fmt.Errorf("usage: providers priority <provider> <n>")
		}
		i, err := find(args[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid priority %q: %w", args[2], err)
		}
		cfgs[i].Priority = n
	default:
		return fmt.Errorf("unknown providers action %q", action)
	}

	if err := ai.SaveProviderConfigs(cfg.ProviderConfigPath, cfgs); err != nil {
		return err
	}
	utils.GetLogger().InfoContext(ctx, "provider config saved",
		slog.String("path", cfg.ProviderConfigPath), slog.String("action", action))
	return nil
}

func compareCmd(ctx context.Context, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("compare", flag.ExitOnError)
	depthName := cmd.String("depth", "standard", "analysis depth")
	cmd.Parse(args)
	if cmd.NArg() != 2 {
		return fmt.Errorf("compare expects two paths")
	}
	depth, err := features.ParseDepth(*depthName)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	recs := a.engine.AnalyzeMany(ctx, cmd.Args(), depth, engine.BatchOptions{Parallel: true, UseCache: true})
	for _, rec := range recs {
		if !rec.OK {
			return fmt.Errorf("%s: %s", rec.Source.Path, rec.Error)
		}
	}
	sim, err := similarity.Compare(recs[0], recs[1])
	if err != nil {
		return err
	}
	return printJSON(sim)
}

func similarCmd(ctx context.Context, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("similar", flag.ExitOnError)
	indexPath := cmd.String("index", "library.json", "library index built with batch -index")
	k := cmd.Int("k", 5, "number of neighbours")
	cmd.Parse(args)
	if cmd.NArg() != 1 {
		return fmt.Errorf("similar expects exactly one path")
	}

	index, err := similarity.LoadIndex(*indexPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Analyze(ctx, cmd.Arg(0), features.DepthStandard, true)
	if err != nil {
		return err
	}
	neighbors, err := index.Query(rec, *k)
	if err != nil {
		return err
	}
	return printJSON(neighbors)
}

// addToIndex adds every successful record to the index at indexPath and
// saves it.
func addToIndex(ctx context.Context, indexPath string, records []*features.Record) error {
	logger := utils.GetLogger()

	index, err := similarity.LoadIndex(indexPath)
	if err != nil {
		return err
	}
	added := 0
	for _, rec := range records {
		if !rec.OK {
			continue
		}
		label := strings.TrimSuffix(filepath.Base(rec.Source.Path), filepath.Ext(rec.Source.Path))
		if _, err := index.Add(rec, label, map[string]string{"path": rec.Source.Path}); err != nil {
			logger.WarnContext(ctx, "record not indexed", slog.String("path", rec.Source.Path), slog.String("reason", err.Error()))
			continue
		}
		added++
	}
	if err := index.Save(); err != nil {
		return err
	}
	fmt.Printf("added %d record(s); index %s now holds %d entries\n", added, indexPath, index.Len())
	return nil
}

func indexCmd(ctx context.Context, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("index", flag.ExitOnError)
	indexPath := cmd.String("index", "library.json", "library index to add to")
	cmd.Parse(args)
	if cmd.NArg() == 0 {
		return fmt.Errorf("index expects one or more files written by batch -out")
	}

	var records []*features.Record
	for _, path := range cmd.Args() {
		recs, err := engine.Import(path)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}
	return addToIndex(ctx, *indexPath, records)
}

func cacheCmd(ctx context.Context, cfg config.Config, args []string) error {
	action := "stats"
	if len(args) > 0 {
		action = args[0]
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	switch action {
	case "stats":
		total, err := a.store.TotalRecords(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("persisted feature records: %d (%s)\n", total, cfg.DBPath)
		for _, path := range args[1:] {
			hash, err := utils.HashFile(path)
			if err != nil {
				return fmt.Errorf("%w: %v", audio.ErrIO, err)
			}
			recs, err := a.store.RecordsByHash(ctx, hash)
			if err != nil {
				return err
			}
			depths := make([]string, len(recs))
			for i, r := range recs {
				depths[i] = r.Depth
			}
			fmt.Printf("  %s: %d record(s) [%s]\n", path, len(recs), strings.Join(depths, ", "))
		}
		return nil
	case "purge":
		n, err := a.store.PurgeAnalyses(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("purged %d expired response(s)\n", n)
		return nil
	case "clear":
		if err := a.engine.ClearCache(ctx); err != nil {
			return err
		}
		if err := a.store.ClearAnalyses(ctx); err != nil {
			return err
		}
		if err := clearResponseBackend(ctx, cfg); err != nil {
			return err
		}
		fmt.Println("feature and response caches cleared")
		return nil
	}
	return fmt.Errorf("unknown cache action %q", action)
}

// clearResponseBackend empties the persistent response cache backends that
// live outside the SQLite file.
func clearResponseBackend(ctx context.Context, cfg config.Config) error {
	switch strings.ToLower(cfg.CacheBackend) {
	case "file":
		entries, err := filepath.Glob(filepath.Join(cfg.CacheDir, "*.json"))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := os.Remove(entry); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("error removing %s: %w", entry, err)
			}
		}
	case "mongo":
		client, err := db.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer client.Close(context.Background())
		return client.ClearAnalyses(ctx)
	}
	return nil
}

const socketRequestTimeout = 5 * time.Minute

func serveCmd(ctx context.Context, cfg config.Config, args []string) error {
	logger := utils.GetLogger()

	cmd := flag.NewFlagSet("serve", flag.ExitOnError)
	port := cmd.String("p", utils.GetEnv("PORT", "5000"), "port to listen on")
	protocol := cmd.String("proto", "http", "http or https")
	cmd.Parse(args)

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	allowOriginFunc := func(r *http.Request) bool { return true }
	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{CheckOrigin: allowOriginFunc},
			&polling.Transport{CheckOrigin: allowOriginFunc},
		},
	})
	newSocketController(a.engine, a.orchestrator, socketRequestTimeout).register(server)

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("socket.io serve failed", slog.Any("error", xerrors.New(err)))
		}
	}()
	defer server.Close()

	router := newRouter(a.engine, a.orchestrator, server)
	return serveHTTP(ctx, strings.EqualFold(*protocol, "https"), *port, router)
}

// serveHTTP listens until ctx is cancelled or an interrupt arrives, then
// shuts the server down.
func serveHTTP(ctx context.Context, serveHTTPS bool, port string, handler http.Handler) error {
	logger := utils.GetLogger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if serveHTTPS {
			srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			certFile := utils.GetEnv("CERT_FILE", "")
			keyFile := utils.GetEnv("CERT_KEY", "")
			if certFile == "" || keyFile == "" {
				errCh <- fmt.Errorf("https needs CERT_FILE and CERT_KEY")
				return
			}
			logger.Info("starting HTTPS server", slog.String("addr", srv.Addr))
			errCh <- srv.ListenAndServeTLS(certFile, keyFile)
			return
		}
		logger.Info("starting HTTP server", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
