package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/benmeehan/locator/internal/constants"
	"github.com/benmeehan/locator/internal/models"
	"github.com/benmeehan/locator/internal/service_registry"
	"github.com/benmeehan/locator/internal/utils"
	"github.com/benmeehan/locator/internal/workflow"
	"github.com/benmeehan/locator/pkg/file"
	"github.com/benmeehan/locator/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "locator",
		Short:        "Share this device's location with a configured URL",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file")

	// withApp builds the shared components for commands that need them.
	withApp := func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, args, a)
		}
	}

	root.AddCommand(
		newAgentCmd(withApp),
		newFindCmd(withApp),
		newToggleCmd("enable", "Enable location sharing and register the background task", true, withApp),
		newToggleCmd("disable", "Disable location sharing and unregister the background task", false, withApp),
		newURLCmd(withApp),
		newStatusCmd(withApp),
		newConfigCmd(&configPath),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error

func newAgentCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the background task scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mqttClient mqtt.MQTTClient
			if a.config.Status.Enabled {
				// Generate a unique MQTT Client ID by appending a UUID
				clientID := a.config.Status.ClientID + "-" + uuid.NewString()
				a.logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

				mqttService := mqtt.NewMqttService(a.fileClient)
				if err := mqttService.Configure(a.config.Status.Broker, clientID, a.config.Status.CACertificate); err != nil {
					return fmt.Errorf("failed to initialize MQTT connection: %w", err)
				}
				mqttClient = mqttService
			}

			// Create a new service registry to manage services
			serviceRegistry := service_registry.NewServiceRegistry(mqttClient, a.logger)
			if err := serviceRegistry.RegisterServices(a.config, a.scheduler, a.workflow); err != nil {
				return err
			}
			if err := serviceRegistry.StartServices(); err != nil {
				return err
			}
			a.logger.Info().Msg("All services started successfully")

			<-ctx.Done()

			a.logger.Info().Msg("Shutting down gracefully...")
			return serviceRegistry.StopServices()
		}),
	}
}

func newFindCmd(withApp appRunner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Locate the device now and report it if sharing is enabled",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			outcome := a.workflow.Run(cmd.Context(), models.TriggerForeground)
			return printOutcome(cmd.OutOrStdout(), outcome, asJSON)
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run outcome as JSON")
	return cmd
}

func newToggleCmd(use, short string, enabled bool, withApp appRunner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			outcome, err := a.workflow.SetEnabled(cmd.Context(), enabled)
			if outcome.RunID != "" {
				if perr := printOutcome(cmd.OutOrStdout(), outcome, asJSON); perr != nil {
					return perr
				}
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run outcome as JSON")
	return cmd
}

func newURLCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "url [value]",
		Short: "Show or set the URL that location reports are sent to",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), a.workflow.Settings(cmd.Context()).URL)
				return nil
			}

			updated, err := a.workflow.SetURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), updated.URL)
			return nil
		}),
	}
}

func newStatusCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show settings and background task registrations",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			current := a.workflow.Settings(cmd.Context())
			registration := a.workflow.RegistrationStatus()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "enabled:\t%t\n", current.Enabled)
			fmt.Fprintf(w, "url:\t%s\n", current.URL)
			fmt.Fprintf(w, "background:\t%s\n", registration.Available)
			fmt.Fprintf(w, "registered:\t%t\n", registration.IsRegistered)

			regs, err := a.scheduler.Registrations()
			if err != nil {
				a.logger.Error().Err(err).Msg("Failed to read task registrations")
			}
			for _, reg := range regs {
				lastRun := "never"
				if !reg.LastRun.IsZero() {
					lastRun = reg.LastRun.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "task %s:\tevery %s, last run %s (%s)\n",
					reg.TaskID, reg.MinimumInterval, lastRun, reg.LastResult)
			}
			return w.Flush()
		}),
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fileClient := file.NewFileService()

			exists, err := fileClient.IsFileExists(*configPath)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", *configPath)
			}
			if err := fileClient.WriteYamlFile(*configPath, utils.DefaultConfig()); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), *configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}

func printOutcome(out io.Writer, outcome models.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	fmt.Fprintln(out, outcome.Status)
	if outcome.Reported() && outcome.Error != "" {
		fmt.Fprintf(out, "report failed: %s\n", outcome.Error)
	}
	if outcome.State == workflow.StateBusy.String() {
		return errors.New(constants.StatusBusy)
	}
	return nil
}
