package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/davidbalbert/ospfd/api"
	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/logger"
	"github.com/davidbalbert/ospfd/ospf"
	"github.com/davidbalbert/ospfd/services"
	"github.com/davidbalbert/ospfd/system"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run ospfd in the foreground. Sending SIGHUP reloads the config file;
every service is restarted with the new config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Infof("starting ospfd %s with uid %d", version, os.Getuid())

		configManager, err := config.NewConfigManager(configPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		builders := make(services.Builders)
		builders.MustRegister(config.ServiceTypeAPIServer, func(sm *services.ServiceManager, conf any) (services.Runner, error) {
			return api.NewServer(sm, socketPath, cancel, version), nil
		})
		builders.MustRegister(config.ServiceTypeInterfaceMonitor, system.NewInterfaceMonitor)
		builders.MustRegister(config.ServiceTypeOSPF, ospf.NewInstance)

		serviceManager := services.NewServiceManager(configManager, builders)

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return configManager.Run(ctx)
		})

		g.Go(func() error {
			return serviceManager.Run(ctx)
		})

		g.Go(func() error {
			return reloadOnHangup(ctx, configManager)
		})

		return g.Wait()
	},
}

func reloadOnHangup(ctx context.Context, configManager *config.ConfigManager) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			conf, err := config.Load(configPath)
			if err != nil {
				logger.Errorf("reload: %v", err)
				continue
			}

			if err := configManager.UpdateConfig(conf); err != nil {
				logger.Errorf("reload: %v", err)
				continue
			}

			logger.Infof("reloaded %s", configPath)
		}
	}
}
