package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"amoflow/internal/config"
	"amoflow/internal/logger"
)

var (
	// Global flags
	configPath string
	debug      bool

	cfg  *config.Config
	logr *log.Logger
)

// errRunFailed — конверт уже напечатан, остаётся только ненулевой код выхода.
var errRunFailed = errors.New("run finished with success=false")

var rootCmd = &cobra.Command{
	Use:           "amoflow",
	Short:         "amoflow — автоматизация сделок amoCRM (перенос и копирование по бюджету)",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if debug {
			cfg.Log.Debug = true
		}
		logr = logger.New(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "путь к config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "подробные логи и место паники в ответе")

	rootCmd.AddCommand(serveCmd, runCmd, stagesCmd, authCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
