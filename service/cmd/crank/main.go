// cmd/crank/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/agent"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
	"github.com/ScavieFae/autonomous-world-model/service/internal/api"
	"github.com/ScavieFae/autonomous-world-model/service/internal/archive"
	"github.com/ScavieFae/autonomous-world-model/service/internal/config"
	"github.com/ScavieFae/autonomous-world-model/service/internal/crank"
	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
	"github.com/ScavieFae/autonomous-world-model/service/internal/stream"
)

const usage = `usage: crank <command> [flags]

commands:
  run          play one match offline and write its JSON record
  serve        stream matches to websocket viewers
  crank        advance a ledger-held session frame by frame
  schema       print the match record JSON schema
  init-bundle  write a randomly initialised weight bundle
  token        issue a viewer token
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	root, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	log := root.WithField("component", cmd)
	switch cmd {
	case "run":
		err = runStandalone(ctx, cfg, args, log)
	case "serve":
		err = runServe(ctx, cfg, args, root)
	case "crank":
		err = runCrank(ctx, cfg, args, log)
	case "schema":
		err = runSchema(args)
	case "init-bundle":
		err = runInitBundle(cfg, args, log)
	case "token":
		err = runToken(cfg, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Command failed")
	}
}

// matchFlags registers the flags shared by run and serve.
func matchFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.WorldModel, "world-model", cfg.WorldModel, "world model bundle directory (empty: random weights)")
	fs.StringVar(&cfg.P0Agent, "p0", cfg.P0Agent, "P0 agent spec")
	fs.StringVar(&cfg.P1Agent, "p1", cfg.P1Agent, "P1 agent spec")
	fs.IntVar(&cfg.Stage, "stage", cfg.Stage, "stage id")
	fs.IntVar(&cfg.MaxFrames, "max-frames", cfg.MaxFrames, "post-seed frame budget")
	fs.BoolVar(&cfg.NoEarlyKO, "no-early-ko", cfg.NoEarlyKO, "keep playing after a KO")
	fs.Uint64Var(&cfg.RandomSeed, "seed", cfg.RandomSeed, "seed for random weights and character draws")
}

// loadWorld loads the configured bundle, or a seeded random model when no
// bundle is configured.
func loadWorld(cfg config.Config, log *logrus.Entry) (*model.WorldModel, error) {
	if cfg.WorldModel == "" {
		wm, err := model.NewWorldModel(engine.DefaultEncodingConfig(), model.DefaultWorldArch())
		if err != nil {
			return nil, err
		}
		wm.Randomize(cfg.RandomSeed)
		log.Warnf("No world model bundle given; using random weights (seed %d)", cfg.RandomSeed)
		return wm, nil
	}
	wm, _, err := model.LoadWorldModel(cfg.WorldModel)
	if err != nil {
		return nil, err
	}
	log.Infof("World model: %s (%s), context=%d", cfg.WorldModel, wm.Arch.Kind, wm.ContextLen())
	return wm, nil
}

func openArchive(ctx context.Context, cfg config.Config, log *logrus.Entry) (archive.Store, error) {
	if cfg.ArchiveDriver == "" {
		return nil, nil
	}
	store, err := archive.Open(ctx, cfg.ArchiveDriver, cfg.ArchiveDSN)
	if err != nil {
		return nil, err
	}
	log.Infof("Archiving matches to %s", cfg.ArchiveDriver)
	return store, nil
}

func runStandalone(ctx context.Context, cfg config.Config, args []string, log *logrus.Entry) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	matchFlags(fs, &cfg)
	fs.IntVar(&cfg.P0Char, "p0-char", cfg.P0Char, "P0 character id")
	fs.IntVar(&cfg.P1Char, "p1-char", cfg.P1Char, "P1 character id")
	output := fs.String("output", "match.json", "output JSON path")
	save := fs.Bool("archive", false, "also store the record in the match archive")
	fs.Parse(args)

	wm, err := loadWorld(cfg, log)
	if err != nil {
		return err
	}
	enc := wm.Config
	p0, err := agent.Parse(cfg.P0Agent, 0, enc, log)
	if err != nil {
		return err
	}
	p1, err := agent.Parse(cfg.P1Agent, 1, enc, log)
	if err != nil {
		return err
	}
	r, err := rollout.NewRunner(wm, enc, p0, p1, rollout.Options{
		Stage:           cfg.Stage,
		P0Char:          cfg.P0Char,
		P1Char:          cfg.P1Char,
		MaxFrames:       cfg.MaxFrames,
		NoEarlyKO:       cfg.NoEarlyKO,
		Logger:          log,
		ModelCheckpoint: cfg.WorldModel,
		Arch:            wm.Arch.Kind,
		P0Agent:         cfg.P0Agent,
		P1Agent:         cfg.P1Agent,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	rec, err := r.Run()
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	steps := r.Steps()
	log.Infof("Match finished: %d frames (%d generated) in %.2fs (%.1f fps), outcome %s",
		rec.Meta.TotalFrames, steps, elapsed.Seconds(), float64(steps)/max(elapsed.Seconds(), 1e-9), r.Outcome())

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return err
	}
	log.Infof("Wrote %s (%d bytes)", *output, len(data))

	if steps > 0 {
		last := rec.Frames[len(rec.Frames)-1]
		a, b := last.Players[0], last.Players[1]
		log.Infof("Final: P0 stocks=%.0f pct=%.1f%% | P1 stocks=%.0f pct=%.1f%%", a.Stocks, a.Percent, b.Stocks, b.Percent)
	}

	if *save {
		store, err := openArchive(ctx, cfg, log)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
			if err := store.SaveMatch(ctx, uuid.New(), rec, r.Outcome().String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg config.Config, args []string, root *logrus.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	matchFlags(fs, &cfg)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "target frames per second")
	fs.BoolVar(&cfg.Loop, "loop", cfg.Loop, "loop matches continuously")
	fixed := fs.Bool("fixed-characters", false, "use -p0-char/-p1-char instead of random tournament characters")
	fs.IntVar(&cfg.P0Char, "p0-char", cfg.P0Char, "P0 character id with -fixed-characters")
	fs.IntVar(&cfg.P1Char, "p1-char", cfg.P1Char, "P1 character id with -fixed-characters")
	fs.Parse(args)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := root.WithField("component", "serve")

	wm, err := loadWorld(cfg, log)
	if err != nil {
		return err
	}
	// Fail fast on bad agent specs before any viewer connects.
	for p, spec := range []string{cfg.P0Agent, cfg.P1Agent} {
		if _, err := agent.Parse(spec, p, wm.Config, log); err != nil {
			return err
		}
	}

	hub := stream.NewHub(stream.DefaultBuffer, root.WithField("component", "hub"))
	defer hub.Close()
	if cfg.RedisURL != "" {
		pub, err := stream.NewRedisPublisher(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer pub.Close()
		hub.SetPublisher(pub)
		log.Infof("Publishing frames to redis channel %s", cfg.RedisChannel)
	}

	store, err := openArchive(ctx, cfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	factory := match.NewFactory(wm, wm.Config, match.Settings{
		P0Agent:         cfg.P0Agent,
		P1Agent:         cfg.P1Agent,
		Stage:           cfg.Stage,
		MaxFrames:       cfg.MaxFrames,
		NoEarlyKO:       cfg.NoEarlyKO,
		FrameInterval:   cfg.FrameInterval(),
		ModelCheckpoint: cfg.WorldModel,
		Arch:            wm.Arch.Kind,
	}, cfg.RandomSeed, root.WithField("component", "match"))

	srv := &stream.Server{
		Hub:       hub,
		Factory:   factory,
		Loop:      cfg.Loop,
		LoopPause: cfg.LoopPause,
		Log:       log,
	}
	if *fixed {
		srv.Pairing = func() (int, int) { return cfg.P0Char, cfg.P1Char }
	}
	if store != nil {
		srv.OnMatchEnd = func(id uuid.UUID, rec *rollout.MatchRecord, o rollout.Outcome) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := store.SaveMatch(saveCtx, id, rec, o.String()); err != nil {
				log.WithError(err).WithField("match", id).Error("Failed to archive match")
			}
		}
	}

	var tokens *stream.Tokens
	if cfg.JWTSecret != "" {
		tokens = stream.NewTokens(cfg.JWTSecret, 0)
	}
	apiSrv := &api.Server{
		Stream: &stream.Handler{
			Hub:    hub,
			Tokens: tokens,
			Sync:   srv.SyncEvent,
			Log:    root.WithField("component", "ws"),
		},
		Current: srv.Current,
		Viewers: hub.Count,
		Store:   store,
		Log:     root.WithField("component", "api"),
	}
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: apiSrv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Listening on %s (websocket at /ws)", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := srv.Run(gctx)
		if err == nil && !cfg.Loop {
			log.Info("Match finished; shutting down")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		if serr := httpSrv.Shutdown(shutdownCtx); serr != nil && err == nil {
			err = serr
		}
		return err
	})
	return g.Wait()
}

func runCrank(ctx context.Context, cfg config.Config, args []string, log *logrus.Entry) error {
	fs := flag.NewFlagSet("crank", flag.ExitOnError)
	fs.StringVar(&cfg.WorldModel, "world-model", cfg.WorldModel, "world model bundle directory (empty: random weights)")
	fs.Uint64Var(&cfg.RandomSeed, "seed", cfg.RandomSeed, "seed for random weights")
	ledgerURL := fs.String("ledger", cfg.RedisURL, "redis URL of the ledger holding the session")
	sessionKey := fs.String("session", "", "session record key")
	inputKey := fs.String("input", "", "input buffer record key (default <session>:input)")
	policy := fs.String("policy", "", "policy bundle driving both players when their input is not ready")
	fs.Parse(args)

	if *sessionKey == "" {
		return errors.New("crank: -session is required")
	}
	if *ledgerURL == "" {
		return errors.New("crank: -ledger (or CRANK_REDIS_URL) is required")
	}
	if *inputKey == "" {
		*inputKey = *sessionKey + ":input"
	}

	wm, err := loadWorld(cfg, log)
	if err != nil {
		return err
	}
	ledger, err := crank.NewRedisLedger(ctx, *ledgerURL)
	if err != nil {
		return err
	}
	defer ledger.Close()

	c := crank.New(wm, wm.Config, ledger, *sessionKey, *inputKey, log)
	if *policy != "" {
		for p := range c.Agents {
			a, err := agent.Parse("policy:"+*policy, p, wm.Config, log)
			if err != nil {
				return err
			}
			c.Agents[p] = a
		}
	}
	return c.Run(ctx)
}

func runSchema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	out := fs.String("out", "", "output path (default stdout)")
	fs.Parse(args)

	data, err := json.MarshalIndent(api.MatchRecordSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("schema: marshal: %w", err)
	}
	data = append(data, '\n')
	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func runInitBundle(cfg config.Config, args []string, log *logrus.Entry) error {
	fs := flag.NewFlagSet("init-bundle", flag.ExitOnError)
	dir := fs.String("dir", "", "bundle directory to write")
	kind := fs.String("arch", model.ArchMamba2, "architecture: mamba2 or policy_mlp")
	seed := fs.Uint64("seed", cfg.RandomSeed, "weight seed")
	arch := model.DefaultWorldArch()
	fs.IntVar(&arch.ContextLen, "context", arch.ContextLen, "context length")
	fs.IntVar(&arch.DModel, "d-model", arch.DModel, "mamba2 model width")
	fs.IntVar(&arch.DState, "d-state", arch.DState, "mamba2 state size")
	fs.IntVar(&arch.NLayers, "layers", arch.NLayers, "mamba2 layers")
	fs.IntVar(&arch.HeadDim, "head-dim", arch.HeadDim, "mamba2 head width")
	fs.IntVar(&arch.ChunkSize, "chunk", arch.ChunkSize, "mamba2 scan chunk size (0: sequential)")
	fs.Parse(args)
	if *dir == "" {
		return errors.New("init-bundle: -dir is required")
	}

	enc := engine.DefaultEncodingConfig()
	switch *kind {
	case model.ArchMamba2:
		wm, err := model.NewWorldModel(enc, arch)
		if err != nil {
			return err
		}
		wm.Randomize(*seed)
		if _, err := model.SaveBundle(*dir, wm.Arch, &enc, wm.Params()); err != nil {
			return err
		}
	case model.ArchPolicyMLP:
		p, err := model.NewPolicy(enc, model.DefaultPolicyArch())
		if err != nil {
			return err
		}
		p.Randomize(*seed)
		if _, err := model.SaveBundle(*dir, p.Arch, nil, p.Params()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("init-bundle: unknown arch %q", *kind)
	}
	log.Infof("Wrote %s bundle to %s (seed %d)", *kind, *dir, *seed)
	return nil
}

func runToken(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	viewer := fs.String("viewer", "", "viewer name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	fs.Parse(args)
	if cfg.JWTSecret == "" {
		return errors.New("token: CRANK_JWT_SECRET is not set")
	}
	if *viewer == "" {
		return errors.New("token: -viewer is required")
	}
	tok, err := stream.NewTokens(cfg.JWTSecret, *ttl).Issue(*viewer)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
