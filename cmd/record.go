package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracecap/internal/capture"
	"tracecap/internal/catalog"
	"tracecap/internal/config"
	"tracecap/internal/intake"
	"tracecap/internal/metrics"
	"tracecap/internal/notify"
	"tracecap/internal/recorder"
	"tracecap/internal/session"
	"tracecap/internal/sink"
	"tracecap/pkg/models"
)

var metricsAddr string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run a capture session",
	Long: `Starts a capture session: full-screen video through a supervised ffmpeg
process, plus an event log fed by the instrumented browser via the local
intake endpoint. Runs until interrupted (Ctrl-C), then shuts down the
recorder and sinks in order and reports where the artifacts were saved.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadCapture()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		log := newLogger()
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runCapture(ctx, cfg, log); err != nil {
			fmt.Printf("Recording did not stop cleanly: %v\n", err)
			os.Exit(1)
		}
	},
}

// runCapture owns one full session: sinks, recorder, pipeline, intake, and
// the fixed-order shutdown sequence. Shared with the agent service mode.
func runCapture(ctx context.Context, cfg config.Capture, log *zap.Logger) error {
	sess := session.New()
	stem := sess.Stem()

	m := metrics.New()
	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// Both sinks exist before anything can produce into them.
	lines := sink.NewLinePump(os.Stdout, log, func() { m.SinkDropped.WithLabelValues("lines").Inc() })
	records, err := sink.NewRecordWriter(cfg.LogsDir, stem, log, func() { m.SinkDropped.WithLabelValues("records").Inc() })
	if err != nil {
		return err
	}
	if err := lines.Start(); err != nil {
		return err
	}
	if err := records.Start(); err != nil {
		return err
	}

	sup, err := recorder.New(recorder.Options{
		OutDir:      cfg.VideosDir,
		Stem:        stem,
		FPS:         cfg.FPS,
		Codec:       cfg.Codec,
		Bitrate:     cfg.Bitrate,
		Preset:      cfg.Preset,
		PixFmt:      cfg.PixFmt,
		ScreenIndex: -1,
	}, log)
	if err != nil {
		stopSinks(lines, records, log)
		return err
	}

	pipeline := capture.New(
		capture.Options{AllowTypes: cfg.ActionTypes, Debug: cfg.Debug},
		records, lines, log,
		func() { m.EventsAccepted.Inc() },
		func() { m.EventsRejected.Inc() },
	)
	srv := intake.New(cfg.IntakeAddr, pipeline, log)

	var cat *catalog.Catalog
	if c, err := catalog.Open(cfg.CatalogPath); err != nil {
		log.Warn("session catalog unavailable", zap.Error(err))
	} else {
		cat = c
		defer cat.Close()
		if err := c.Register(models.SessionInfo{
			Stem:       stem,
			Basename:   sess.Basename,
			CreatedAt:  sess.CreatedAt,
			VideoPath:  sup.OutPath,
			LogPath:    sup.LogPath,
			EventsPath: records.Path,
			Status:     models.SessionRecording,
		}); err != nil {
			log.Warn("session registration failed", zap.Error(err))
		}
	}

	status := models.SessionIncomplete
	var videoBytes int64

	// Terminal bookkeeping happens regardless of which subsystem failed.
	defer func() {
		if metricsSrv != nil {
			sd, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = metricsSrv.Shutdown(sd)
			cancel()
		}
		if cat != nil {
			if err := cat.Finish(stem, status, videoBytes); err != nil {
				log.Warn("catalog update failed", zap.Error(err))
			}
		}
		notify.New(cfg.WebhookURL, log).Send("session_stopped", map[string]any{
			"stem":            stem,
			"status":          status,
			"video_bytes":     videoBytes,
			"records_dropped": records.Dropped(),
			"lines_dropped":   lines.Dropped(),
		})
	}()

	if err := sup.Start(); err != nil {
		stopSinks(lines, records, log)
		return err
	}
	lines.Put("[RECORDER] Full-screen recording started → " + sup.OutPath)

	srv.Start()

	// Keep-alive pump: a short periodic no-op while recording proceeds. The
	// primary loop never waits on a queue.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
pump:
	for {
		select {
		case <-ctx.Done():
			break pump
		case <-ticker.C:
		}
	}

	// Fixed shutdown order: intake, recorder, then sinks. A failure in one
	// step never skips the rest.
	sd, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := srv.Stop(sd); err != nil {
		log.Warn("intake shutdown failed", zap.Error(err))
	}
	cancel()

	var stopErr error
	if out, err := sup.Stop(6 * time.Second); err != nil {
		lines.Put("[RECORDER] Video stop failed: " + err.Error())
		stopErr = err
	} else {
		lines.Put("[RECORDER] Video saved: " + out)
		status = models.SessionComplete
		if info, err := os.Stat(out); err == nil {
			videoBytes = info.Size()
		}
	}

	stopSinks(lines, records, log)

	if stopErr == nil {
		fmt.Printf("Recording stopped cleanly. Video: %s | Events: %s\n", sup.OutPath, records.Path)
	}
	return stopErr
}

func stopSinks(lines *sink.LinePump, records *sink.RecordWriter, log *zap.Logger) {
	if err := records.Stop(time.Second); err != nil {
		log.Warn("record sink stop", zap.Error(err))
	}
	if err := lines.Stop(time.Second); err != nil {
		log.Warn("line pump stop", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9200)")
}
