package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath   string
	schemeArg    string
	containerArg string
	workersArg   int
	opsArg       int
	keysArg      int
	metricsAddr  string
	logLevel     string
)

func newRootCommand() *cobra.Command {
	m := &cobra.Command{
		Use:          "smrstress",
		Short:        "Hammer a lock-free container under a reclamation scheme and check nothing is read after disposal",
		RunE:         runStress,
		SilenceUsage: true,
	}
	m.Flags().StringVar(&configPath, "config", "", "toml file with reclamation options")
	m.Flags().StringVar(&schemeArg, "scheme", "hp", "reclamation scheme: hp or ptb")
	m.Flags().StringVar(&containerArg, "container", "queue", "container: queue or set")
	m.Flags().IntVar(&workersArg, "workers", 8, "concurrent goroutines")
	m.Flags().IntVar(&opsArg, "ops", 100000, "operations per goroutine")
	m.Flags().IntVar(&keysArg, "keys", 1024, "keys each worker owns in the set container")
	m.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	m.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return m
}

func runStress(cmd *cobra.Command, _ []string) error {
	lg, props, err := log.InitLogger(&log.Config{Level: logLevel})
	if err != nil {
		return err
	}
	log.ReplaceGlobals(lg, props)

	opt := smr.DefaultOptions()
	if configPath != "" {
		if opt, err = smr.LoadOptions(configPath); err != nil {
			return err
		}
	}
	if metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(metricsAddr, promhttp.Handler()); err != nil {
				log.Error("metrics server stopped", zap.String("addr", metricsAddr), zap.Error(err))
			}
		}()
	}

	h, err := newHarness(harnessConfig{
		Scheme:    schemeArg,
		Container: containerArg,
		Workers:   workersArg,
		Ops:       opsArg,
		Keys:      keysArg,
		Options:   opt,
	})
	if err != nil {
		return err
	}
	res, err := h.Run(cmd.Context())
	fmt.Println(res)
	return err
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sc
		fmt.Printf("\nGot signal [%v] to exit.\n", sig)
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
