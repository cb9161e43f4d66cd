package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tracecap/internal/clock"
	"tracecap/internal/metrics"
	"tracecap/internal/notify"
	"tracecap/internal/reconcile"
)

// Variables to hold flag values
var (
	recBasename     string
	recLogsDir      string
	recVideosDir    string
	recImgDir       string
	recOutJSONL     string
	recIncludeTypes []string
	recOffsetMS     float64
	recMinGapMS     float64
	recExt          string
	recQuality      int
	recPrefer       string
	recClamp        bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Extract one still frame per recorded event",
	Long: `Parses the encoder log for the video's start marker, converts it to a
wall-clock anchor, maps every persisted event onto a video offset, and
extracts a frame for each retained event into the per-session image
directory. Writes an augmented JSONL log with the frame paths.

Example:
  tracecap reconcile --basename a1b2c3d4_1700000000 --min-gap-ms 200`,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		defer log.Sync()

		if recPrefer != string(clock.PolicyFirst) && recPrefer != string(clock.PolicyLast) {
			fmt.Println("Error: --prefer must be 'first' or 'last'")
			os.Exit(1)
		}

		engine, err := reconcile.New(reconcile.Options{
			Stem:          recBasename,
			LogsDir:       recLogsDir,
			VideosDir:     recVideosDir,
			ImagesDir:     recImgDir,
			OutPath:       recOutJSONL,
			IncludeTypes:  recIncludeTypes,
			OffsetMS:      recOffsetMS,
			MinGapMS:      recMinGapMS,
			Ext:           recExt,
			Quality:       recQuality,
			Prefer:        clock.Policy(recPrefer),
			ClampNegative: recClamp,
		}, log)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		m := metrics.New()
		engine.SetMetricHooks(m.FramesExtracted.Inc, m.FramesFailed.Inc)
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				sd, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = metricsSrv.Shutdown(sd)
				cancel()
			}()
		}

		res, err := engine.Run(context.Background())
		if err != nil {
			fmt.Printf("Reconciliation failed: %v\n", err)
			os.Exit(1)
		}

		notify.New(viper.GetString("webhook_url"), log).Send("reconcile_finished", map[string]any{
			"stem":    recBasename,
			"frames":  res.Frames,
			"skipped": res.Skipped,
			"out":     res.OutPath,
		})

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				fmt.Printf("Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			return
		}

		fmt.Println("[OK] Images →", res.ImagesDir)
		fmt.Println("[OK] Augmented JSONL →", res.OutPath)
		fmt.Printf("[OK] Video start (host): %.6f s  |  (epoch): %.6f\n", res.HostStart, res.Anchor)
		fmt.Printf("[OK] Frames written: %d  |  Events skipped: %d\n", res.Frames, res.Skipped)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&recBasename, "basename", "", "Session stem, e.g. a1b2c3d4_1700000000")
	reconcileCmd.Flags().StringVar(&recLogsDir, "logs-dir", "logs", "Directory holding the event JSONL")
	reconcileCmd.Flags().StringVar(&recVideosDir, "videos-dir", "videos", "Directory holding the video and encoder log")
	reconcileCmd.Flags().StringVar(&recImgDir, "img-dir", "images", "Root directory for extracted frames")
	reconcileCmd.Flags().StringVar(&recOutJSONL, "out-jsonl", "", "Augmented output path (default <logs-dir>/<basename>_frames.jsonl)")
	reconcileCmd.Flags().StringSliceVar(&recIncludeTypes, "include-types", nil, "Only reconcile these event types (default all)")
	reconcileCmd.Flags().Float64Var(&recOffsetMS, "offset-ms", 0, "Constant correction added to every video offset (milliseconds)")
	reconcileCmd.Flags().Float64Var(&recMinGapMS, "min-gap-ms", 0, "Minimum gap between retained events (milliseconds)")
	reconcileCmd.Flags().StringVar(&recExt, "ext", "jpg", "Output image format: jpg|jpeg|png|webp")
	reconcileCmd.Flags().IntVar(&recQuality, "quality", 2, "JPEG quality (ffmpeg -q:v)")
	reconcileCmd.Flags().StringVar(&recPrefer, "prefer", "last", "Which start marker wins when several exist: first|last")
	reconcileCmd.Flags().BoolVar(&recClamp, "clamp-negative", false, "Clamp events slightly before video start to offset 0 instead of dropping them")
	reconcileCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address for the duration of the run (e.g. :9200)")

	_ = reconcileCmd.MarkFlagRequired("basename")
}
