package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MrEthical07/shopauth"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shopauthd",
		Short:         "Multi-tenant authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SHOPAUTH_CONFIG"), "path to YAML config")

	load := func() (shopauth.Config, error) {
		return shopauth.LoadConfig(configPath)
	}
	root.AddCommand(
		newServeCmd(load),
		newHashPasswordCmd(load),
		newGenKeysCmd(),
	)
	return root
}

// newLogger reads LOG_LEVEL and LOG_DEV=1.
func newLogger() (*zap.Logger, error) {
	dev := os.Getenv("LOG_DEV") == "1"
	level := zapcore.InfoLevel
	if dev {
		level = zapcore.DebugLevel
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, err
		}
	}

	if dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(level)
		return c.Build()
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
