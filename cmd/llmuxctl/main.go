package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soilSpoon/llmux/internal/app"
	"github.com/soilSpoon/llmux/internal/domain/router"
	"github.com/soilSpoon/llmux/internal/infrastructure/config"
	"github.com/soilSpoon/llmux/internal/infrastructure/logger"
)

const (
	ctlVersion = "0.1.0"
	ctlName    = "llmuxctl"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   ctlName,
		Short: "llmuxctl — admin CLI for the llmux gateway",
	}

	var adminAddr string
	rootCmd.PersistentFlags().StringVar(&adminAddr, "addr", "http://localhost:8743", "gateway admin address")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", ctlName, ctlVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "start the gateway server in-process",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "print router/provider health from a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchAndPrint(adminAddr, "/status")
		},
	})

	cooldownsCmd := &cobra.Command{Use: "cooldowns", Short: "manage provider cooldown state"}
	cooldownsCmd.AddCommand(&cobra.Command{
		Use:   "reset [key]",
		Short: "reset one cooldown key (provider:model), or all keys if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			body, _ := json.Marshal(map[string]string{"key": key})
			return postAndPrint(adminAddr, "/admin/cooldowns/reset", body)
		},
	})
	rootCmd.AddCommand(cooldownsCmd)

	configCmd := &cobra.Command{Use: "config", Short: "inspect the local configuration file"}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "load config.json and report whether it parses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := config.Load(); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Println("config OK")
			return nil
		},
	})
	var dumpFormat string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "print the effective configuration (defaults + file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load()
			if err != nil {
				return err
			}
			switch dumpFormat {
			case "yaml":
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
			default:
				out, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			}
			return nil
		},
	}
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "json", "output format: json or yaml")
	configCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := app.NewFromConfig(cfg, func(rtr *router.Router) {
		config.WatchRouting(v, rtr, log)
	}, log)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return gw.Stop(shutdownCtx)
}

func fetchAndPrint(addr, path string) error {
	resp, err := http.Get(addr + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(addr, path string, body []byte) error {
	resp, err := http.Post(addr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, buf.String())
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		fmt.Println(buf.String())
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
