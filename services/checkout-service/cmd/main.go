// services/checkout-service/cmd/main.go

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/app"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "checkout-service",
		Short:        "Stripe card charges for the order pipeline",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateKeysCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the orphan customer reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			a := app.NewApp(logger, cfg)
			if err := a.Start(); err != nil {
				return fmt.Errorf("starting app: %w", err)
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			sig := <-stop
			logger.Info("received signal", slog.String("signal", sig.String()))

			a.Shutdown()
			return nil
		},
	}
}

func validateKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-keys",
		Short: "Check the configured Stripe keys and exit non-zero if any is malformed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			keyErrors := config.ValidateGatewayKeys(cfg.Gateway)
			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]interface{}{
					"mode":   cfg.Gateway.Mode(),
					"valid":  len(keyErrors) == 0,
					"errors": keyErrors,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "mode: %s\n", cfg.Gateway.Mode())
				for _, ke := range keyErrors {
					fmt.Fprintf(out, "  %s\n", ke.Message)
				}
			}

			if len(keyErrors) > 0 {
				return fmt.Errorf("%d stripe key(s) invalid", len(keyErrors))
			}
			if err := cfg.Gateway.CheckActive(); err != nil {
				return err
			}
			if !asJSON {
				fmt.Fprintln(out, "all stripe keys look valid")
			}
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}
