package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabstack"
	"pkt.systems/tabstack/httpapi"
	"pkt.systems/tabstack/internal/appconfig"
	"pkt.systems/tabstack/internal/bridge"
	"pkt.systems/tabstack/sshserver"
)

//go:embed assets/banner.txt
var serveBanner string

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var noBanner bool
	var enableSSH bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tabstack daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logMode := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_MODE")))
			showBanner := !noBanner && logMode != "json" && logMode != "structured"
			if showBanner && serveBanner != "" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), serveBanner)
			}
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			if enableSSH {
				cfg.SSH.Enabled = true
			}

			serverCfg := toServerConfig(cfg)
			opts := []tabstack.ServerOption{tabstack.WithHTTP()}
			if cfg.SSH.Enabled {
				opts = append(opts, tabstack.WithSSH())
			}
			server, err := tabstack.New(serverCfg, tabstack.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for commands")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "disable startup banner")
	cmd.Flags().BoolVar(&enableSSH, "ssh", false, "enable the SSH console regardless of config")
	return cmd
}

func toServerConfig(cfg appconfig.Config) tabstack.ServerConfig {
	return tabstack.ServerConfig{
		Controller: cfg.Presentation.ControllerConfig(),
		HTTP: httpapi.Config{
			Addr:       cfg.HTTP.Addr,
			BasePath:   cfg.HTTP.BasePath,
			HubHistory: cfg.HTTP.HubHistory,
		},
		SSH: sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
		},
		Bridge: bridge.Config{
			RequestTimeout: cfg.Bridge.RequestTimeout(),
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
		},
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	}
}
