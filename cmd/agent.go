package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"tracecap/internal/config"
)

var serviceAction string // "install", "uninstall", "start", "stop"

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface around the capture run.
type program struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	cfg, err := config.LoadCapture()
	if err != nil {
		log.Printf("Fatal: invalid configuration: %v", err)
		// Exit so the service manager attempts a restart with fixed config.
		os.Exit(1)
	}
	logger := newLogger()
	defer logger.Sync()

	if err := runCapture(ctx, cfg, logger); err != nil {
		log.Printf("Capture session ended with error: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block long. Signal the session to shut down and wait
	// for the guaranteed-cleanup sequence to finish.
	log.Println("Stopping tracecap agent...")
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	return nil
}

// --- COMMAND ---

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the recorder as a managed OS service",
	Long: `Runs a capture session under the platform service manager (launchd,
systemd, or Windows services). Use --service to install or control the
service; without it the agent runs in the foreground under the manager.`,
	Run: func(cmd *cobra.Command, args []string) {
		svcConfig := &service.Config{
			Name:        "tracecap-agent",
			DisplayName: "tracecap session recorder",
			Description: "Records browser sessions with synchronized screen video",
			Arguments:   []string{"agent"},
		}
		if metricsAddr != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--metrics-addr", metricsAddr)
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}

		prg := &program{}
		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal(err)
		}

		// Handle service control actions (install, start, stop, uninstall).
		if serviceAction != "" {
			if err := service.Control(s, serviceAction); err != nil {
				log.Fatalf("Failed to %s service: %v", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// Run under the service manager (blocking).
		svcLogger, err := s.Logger(nil)
		if err != nil {
			log.Fatal(err)
		}
		if err = s.Run(); err != nil {
			svcLogger.Error(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
	agentCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9200)")
}
