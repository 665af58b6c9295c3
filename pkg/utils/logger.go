package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewSugaredLogger builds the named logger shared by the CLI commands. Verbose
// selects the development config (debug level, console encoding); otherwise
// the production config is used. Both write to stderr so that stdout carries
// only record output.
func NewSugaredLogger(name string, verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if name != "" {
		l = l.Named(name)
	}
	return l.Sugar(), nil
}
