package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tracecap/internal/config"
	"tracecap/internal/logger"

	"go.uber.org/zap"
)

var cfgFile string
var jsonOutput bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tracecap",
	Short: "Record browser sessions and reconcile events against screen video",
	Long: `tracecap records a user's interaction with an instrumented browser session
as a timestamped event log while capturing full-screen video through ffmpeg,
then reconciles the two: each event is located inside the video and a still
frame is extracted for it.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { config.InitConfig(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tracecap.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// newLogger builds the process logger, honoring the configured debug flag.
func newLogger() *zap.Logger {
	log, err := logger.New(viper.GetBool("debug"))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return log
}
