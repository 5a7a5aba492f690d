package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/araddon/dateparse"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/classifier"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database/memory"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database/pg"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/lut"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/workflow"
)

type config struct {
	DataDir       string
	OutDir        string
	CentroidsFile string
	LutFile       string
	AppPort       string

	DbConnection string

	PgqDbConnection string
	PsProject       string
	JobQueue        string
	EventQueue      string

	Tile  string
	Start string
	End   string

	Processing workflow.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	// Global config
	flag.StringVar(&config.DataDir, "datadir", "", "directory holding the band rasters, cloud layers and ice masks")
	flag.StringVar(&config.OutDir, "outdir", "", "directory where tile datasets and summaries are written (default: no artifacts)")
	flag.StringVar(&config.CentroidsFile, "centroids", "", "JSON file with the class centroids")
	flag.StringVar(&config.LutFile, "lut", "", "JSON file with the parameter retrieval table (required with -retrieve)")
	flag.StringVar(&config.AppPort, "port", "", "port of the status API (default: no API)")

	// Database
	flag.StringVar(&config.DbConnection, "db-connection", "", "postgres connection for run states (default: in-memory)")

	// Messaging
	flag.StringVar(&config.PgqDbConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database")
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub subscription project (gcp only/not required in local usage)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the queue for tile jobs (pgqueue or pubsub subscription)")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for date events (pgqueue or pubsub topic)")

	// Direct run
	flag.StringVar(&config.Tile, "tile", "", "tile to process directly, without a job queue")
	flag.StringVar(&config.Start, "start", "", "first date of the window (with -tile)")
	flag.StringVar(&config.End, "end", "", "last date of the window (with -tile)")

	// Processing
	flag.Float64Var(&config.Processing.MinArea, "min-area", 40, "minimum percentage of usable ice pixels to admit a date")
	flag.Float64Var(&config.Processing.CloudCoverThresh, "cloud-cover", 30, "maximum percentage of cloudy pixels to admit a date")
	flag.Float64Var(&config.Processing.CloudProbThreshold, "cloud-prob", 50, "cloud probability (percent) above which a pixel is cloudy")
	flag.BoolVar(&config.Processing.RetrieveParams, "retrieve", false, "retrieve grain size, density and impurity from the lut")
	flag.IntVar(&config.Processing.CadenceDays, "cadence", 1, "expected interval in days between the dates of a series")
	flag.BoolVar(&config.Processing.TemporalInfill, "temporal-infill", true, "synthesize missing dates from their neighbours")
	flag.IntVar(&config.Processing.DownsampleDays, "downsample", 0, "aggregate the series into buckets of that many days")
	flag.IntVar(&config.Processing.Workers, "workers", 0, "per-date concurrency (default: NumCPU)")
	flag.Parse()

	if config.DataDir == "" {
		return nil, fmt.Errorf("missing datadir config flag")
	}
	if config.CentroidsFile == "" {
		return nil, fmt.Errorf("missing centroids config flag")
	}
	if config.Processing.RetrieveParams && config.LutFile == "" {
		return nil, fmt.Errorf("missing lut config flag (required with -retrieve)")
	}
	if err := config.Processing.Validate(); err != nil {
		return nil, err
	}
	config.Processing.OutDir = config.OutDir
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	var eventPublisher messaging.Publisher
	var jobConsumer messaging.Consumer
	var logMessaging string
	{
		if config.PgqDbConnection != "" {
			db, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
			if err != nil {
				return fmt.Errorf("MessagingService: %w", err)
			}
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", config.JobQueue)
				consumer := pgqueue.NewConsumer(db, config.JobQueue)
				defer consumer.Stop()
				jobConsumer = consumer
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pushing on pgqueue:%s", config.EventQueue)
				eventPublisher = pgqueue.NewPublisher(w, config.EventQueue, pgqueue.WithMaxRetries(5))
			}
		} else if config.PsProject != "" {
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on %s/%s", config.PsProject, config.JobQueue)
				if jobConsumer, err = pubsub.NewConsumer(config.PsProject, config.JobQueue); err != nil {
					return fmt.Errorf("pubsub.NewConsumer: %w", err)
				}
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pushing on %s/%s", config.PsProject, config.EventQueue)
				eventTopic, err := pubsub.NewPublisher(ctx, config.PsProject, config.EventQueue, pubsub.WithMaxRetries(5))
				if err != nil {
					return fmt.Errorf("messaging.NewPublisher: %w", err)
				}
				defer eventTopic.Stop()
				eventPublisher = eventTopic
			}
		}
	}

	var backend db.RunBackend
	if config.DbConnection != "" {
		// the database may still be starting up alongside this service
		if err := service.Retriable(ctx, func() error {
			backend, err = pg.New(ctx, config.DbConnection)
			return err
		}, 5*time.Second, 12); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	} else {
		backend = memory.New()
	}

	clf, err := classifier.LoadFile(config.CentroidsFile)
	if err != nil {
		return fmt.Errorf("centroids[%s]: %w", config.CentroidsFile, err)
	}
	var table *lut.Table
	if config.Processing.RetrieveParams {
		if table, err = lut.LoadFile(config.LutFile); err != nil {
			return fmt.Errorf("lut[%s]: %w", config.LutFile, err)
		}
		log.Logger(ctx).Sugar().Infof("loaded %d lut rows", table.Len())
	}

	provider := ingestion.NewLocal(config.DataDir)
	wf := workflow.NewWorkflow(backend, provider, clf, table, eventPublisher)

	if config.AppPort != "" {
		headersOk := handlers.AllowedHeaders([]string{"*"})
		originsOk := handlers.AllowedOrigins([]string{"*"})
		methodsOk := handlers.AllowedMethods([]string{"GET", "OPTIONS"})
		s := http.Server{
			Addr:    ":" + config.AppPort,
			Handler: handlers.CORS(originsOk, headersOk, methodsOk)(wf.NewHandler()),
		}
		go func() {
			if err := s.ListenAndServe(); err != nil {
				log.Logger(ctx).Error(err.Error())
			}
		}()
	}

	if config.Tile != "" {
		job, err := directJob(config)
		if err != nil {
			return err
		}
		return processJob(ctx, wf, job, config.Processing)
	}

	if jobConsumer == nil {
		return fmt.Errorf("missing configuration for messaging.JobConsumer")
	}

	maxTries := 15 //Must be less than the configured number of tries of the pubsub topic

	log.Logger(ctx).Debug("risa starts" + logMessaging)
	for {
		err := jobConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			if msg.TryCount > maxTries {
				return fmt.Errorf("too many retries")
			}
			job := common.TileJob{}
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			} else if job.Tile == "" {
				return fmt.Errorf("invalid payload: missing tile")
			}
			if err := processJob(ctx, wf, job, config.Processing); err != nil {
				if service.Temporary(err) && msg.TryCount < maxTries {
					return err
				}
				log.Logger(ctx).Warn("job failed", zap.Error(err))
				return nil
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}

func directJob(config *config) (common.TileJob, error) {
	if config.Start == "" || config.End == "" {
		return common.TileJob{}, fmt.Errorf("missing start/end config flags (required with -tile)")
	}
	start, err := dateparse.ParseIn(config.Start, time.UTC)
	if err != nil {
		return common.TileJob{}, fmt.Errorf("start[%s]: %w", config.Start, err)
	}
	end, err := dateparse.ParseIn(config.End, time.UTC)
	if err != nil {
		return common.TileJob{}, fmt.Errorf("end[%s]: %w", config.End, err)
	}
	return common.TileJob{Tile: config.Tile, Start: start, End: end}, nil
}

func processJob(ctx context.Context, wf *workflow.Workflow, job common.TileJob, cfg workflow.Config) error {
	runID, ds, err := wf.ProcessTile(ctx, job, cfg)
	if err != nil {
		return err
	}
	audit := wf.Audit(runID)
	log.Logger(ctx).Sugar().Infof("run %s: %d dates in series (%d accepted, %d rejected, %d failed, %d synthesized)",
		runID, ds.Len(), len(audit.Accepted), len(audit.Rejected), len(audit.Failed), len(audit.Synthesized))
	return nil
}
