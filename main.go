package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rep.coach/internal/api"
	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/db"
	"github.com/banshee-data/rep.coach/internal/detector"
	"github.com/banshee-data/rep.coach/internal/monitor"
	"github.com/banshee-data/rep.coach/internal/session"
	"github.com/banshee-data/rep.coach/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Generate a synthetic squat trace instead of reading detector frames")
	devReps       = flag.Int("dev-reps", 10, "Number of synthetic reps in dev mode")
	replayPath    = flag.String("replay", "", "Replay a recorded keypoint JSONL fixture")
	realtime      = flag.Bool("realtime", false, "Pace replayed frames by their recorded timestamps")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	dbFile        = flag.String("db", "coach.db", "Path to the SQLite database file")
	configPath    = flag.String("config", "", "Tuning config JSON (defaults to "+config.DefaultConfigPath+")")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	traceLen      = flag.Int("trace-len", 3600, "Debug trace capacity in frames")
)

func main() {
	flag.Parse()

	if flag.Arg(0) == "migrate" {
		runMigrate(flag.Args()[1:])
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("rep-coach %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath
	}
	cfg, err := config.LoadTuningConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	var src detector.Source
	switch {
	case *replayPath != "":
		src, err = detector.NewReplaySource(*replayPath)
		if err != nil {
			log.Fatalf("failed to open replay fixture: %v", err)
		}
	case *devMode:
		src = detector.NewSyntheticSource(*devReps)
	default:
		// Live mode: the detector process pipes keypoint JSONL over stdin.
		src = detector.NewStreamSource(os.Stdin)
	}
	defer src.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	sessions := session.NewManager(cfg)
	trace := monitor.NewTrace(*traceLen)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// frame loop: the single writer of pipeline state
	wg.Add(1)
	go func() {
		defer wg.Done()
		runFrameLoop(ctx, src, sessions, trace, database)
		log.Print("frame loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes (tailsql console, db backup, traces)
		database.AttachAdminRoutes(mux)
		monitor.NewMonitor(trace).AttachRoutes(mux)

		mux.Handle("/api/", api.NewServer(sessions, database).ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runFrameLoop drains the detector source through the active session,
// publishing snapshots for the API and persisting reps and cues as they
// happen. A database write failure is logged, never fatal: the live
// coaching loop outranks the history.
func runFrameLoop(ctx context.Context, src detector.Source, sessions *session.Manager, trace *monitor.Trace, database *db.DB) {
	var (
		lastTS          float64
		haveTS          bool
		recordedSession string
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			log.Print("detector stream exhausted")
			return
		}
		if err != nil {
			log.Printf("detector read error: %v", err)
			return
		}

		if *realtime && haveTS && frame.Timestamp > lastTS {
			time.Sleep(time.Duration((frame.Timestamp - lastTS) * float64(time.Second)))
		}
		lastTS = frame.Timestamp
		haveTS = true

		sess := sessions.Current()
		res := sess.ProcessFrame(frame)
		sessions.Publish(res)
		trace.Record(res.Snapshot, frame.Timestamp)

		if res.Snapshot.Calibrated && sess.ID() != recordedSession {
			baseline := sess.Baseline()
			if err := database.RecordSession(db.SessionRecord{
				SessionID:        sess.ID(),
				StartedAt:        sess.StartedAt(),
				ReferenceHipY:    baseline.ReferenceHipY,
				ScaleUnit:        baseline.ScaleUnit,
				TrunkBaselineDeg: baseline.TrunkBaselineDeg,
			}); err != nil {
				log.Printf("failed to record session: %v", err)
			}
			recordedSession = sess.ID()
		}

		if res.Rep != nil {
			if err := database.RecordRep(db.RepRecord{
				SessionID:  res.Rep.SessionID,
				RepNumber:  res.Rep.RepNumber,
				Depth:      res.Rep.Depth,
				Timestamp:  res.Rep.Timestamp,
				RecordedAt: res.Rep.RecordedAt,
			}); err != nil {
				log.Printf("failed to record rep: %v", err)
			}
			log.Printf("rep %d counted (depth %.2f)", res.Rep.RepNumber, res.Rep.Depth)
		}

		if res.Cue != nil {
			if err := database.RecordCue(db.CueRecord{
				SessionID:  sess.ID(),
				Kind:       string(res.Cue.Kind),
				Message:    res.Cue.Message,
				RepNumber:  res.Snapshot.RepCount,
				RecordedAt: time.Now(),
			}); err != nil {
				log.Printf("failed to record cue: %v", err)
			}
			log.Printf("cue: %s", res.Cue.Message)
		}
	}
}

// runMigrate handles the migrate subcommand: up, down, status, force <n>.
func runMigrate(args []string) {
	if len(args) == 0 {
		log.Fatal("usage: rep-coach migrate <up|down|status|force>")
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("migrate up failed: %v", err)
		}
		log.Print("migrations applied")
	case "down":
		if err := database.MigrateDown(*migrationsDir); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
		log.Print("rolled back one migration")
	case "status":
		version, dirty, err := database.MigrateVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("migrate status failed: %v", err)
		}
		log.Printf("version=%d dirty=%v", version, dirty)
	case "force":
		if len(args) < 2 {
			log.Fatal("usage: rep-coach migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("invalid version %q: %v", args[1], err)
		}
		if err := database.MigrateForce(*migrationsDir, version); err != nil {
			log.Fatalf("migrate force failed: %v", err)
		}
		log.Printf("forced version to %d", version)
	default:
		log.Fatalf("unknown migrate subcommand %q", args[0])
	}
}
