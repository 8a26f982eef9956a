package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"listing-wizard/internal/config"
	"listing-wizard/internal/gateway"
	"listing-wizard/internal/observability"
	"listing-wizard/internal/providers"
	"listing-wizard/internal/repository/localstore"
	"listing-wizard/internal/usecase"
	"listing-wizard/internal/wizard"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	root := &cobra.Command{
		Use:   "wizard",
		Short: "Listing wizard - write a property listing step by step",
		Long: `Listing wizard walks through transaction type, property type, features,
highlights and target audience, drafts a buyer persona with questions and
answers, and writes the final listing text.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.wizard.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store", "", "path of the session database")
	root.PersistentFlags().String("provider", "", "primary provider (openai, gemini)")
	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("store.path", root.PersistentFlags().Lookup("store"))
	_ = a.v.BindPFlag("provider.primary", root.PersistentFlags().Lookup("provider"))

	root.AddCommand(
		newStartCmd(a),
		newResumeCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newEndCmd(a),
	)
	return root
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".wizard")
	}

	readErr := a.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if readErr != nil && (a.cfgFile != "" || !errors.As(readErr, &notFound)) {
		return fmt.Errorf("read config: %w", readErr)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// stdout belongs to the conversation.
	observability.SetLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	})))
	if readErr == nil {
		observability.Logger().Debug("using config file", "file", a.v.ConfigFileUsed())
	}
	return nil
}

// service opens the local store and wires the session service. Commands that
// never generate text work without provider keys.
func (a *app) service(ctx context.Context, needProviders bool) (*usecase.WizardService, func(), error) {
	var gen wizard.Generator = offline{}
	creds := a.cfg.Provider.Credentials()
	if needProviders || !creds.Empty() {
		gw, err := providers.NewGateway(ctx, a.cfg.Provider, creds)
		if err != nil {
			return nil, nil, err
		}
		gen = gw
	}
	machine, err := wizard.NewMachine(gen)
	if err != nil {
		return nil, nil, err
	}

	store, err := localstore.Open(a.cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	svc, err := usecase.NewWizardService(store, machine)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() { _ = store.Close() }, nil
}

type offline struct{}

func (offline) Generate(context.Context, gateway.Request) (gateway.Result, error) {
	return gateway.Result{}, fmt.Errorf("%w: no provider API key configured", gateway.ErrUnavailable)
}
