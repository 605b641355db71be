package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	pj "github.com/hokaccha/go-prettyjson"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/netwatcherio/netwatcher-diag/api"
	"github.com/netwatcherio/netwatcher-diag/workers"
)

var configFile = ""

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "netwatcher-diag",
		Short:         "On-demand network diagnostics for this host",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", ".env", "config file to be used")

	var upOnly, withPublic bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the diagnostics HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, d, err := initialize()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, d)
		},
	}

	interfacesCmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, d, err := initialize()
			if err != nil {
				return err
			}
			res, err := d.Interfaces(cmd.Context(), upOnly)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	interfacesCmd.Flags().BoolVar(&upOnly, "up", false, "only list interfaces that are up")

	speedtestCmd := &cobra.Command{
		Use:   "speedtest [interface]",
		Short: "Measure download and upload throughput of an interface",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, d, err := initialize()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			res, err := d.SpeedTest(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze the structure, DNS records and reachability of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, d, err := initialize()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d.AnalyzeURL(cmd.Context(), args[0]))
		},
	}

	netinfoCmd := &cobra.Command{
		Use:   "netinfo",
		Short: "Show host, gateway and public address information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, d, err := initialize()
			if err != nil {
				return err
			}
			res, err := d.NetInfo(cmd.Context(), withPublic)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	netinfoCmd.Flags().BoolVar(&withPublic, "public", false, "also look up the public address and ISP")

	rootCmd.AddCommand(serveCmd, interfacesCmd, speedtestCmd, analyzeCmd, netinfoCmd)
	return rootCmd
}

func initialize() (*Config, *workers.Dispatcher, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg)
	return cfg, buildDispatcher(cfg), nil
}

func serve(ctx context.Context, cfg *Config, d *workers.Dispatcher) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infof("NetWatcher diagnostics v%s", VERSION)
	srv := api.NewServer(cfg.ListenAddr, VERSION, d)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Warn("received shutdown signal")
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	}
}

// printJSON colors the output when w is a terminal.
func printJSON(w io.Writer, v interface{}) error {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := pj.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
