package fflag

import (
	"context"
	"log"
	"os"
	"time"

	ffclient "github.com/thomaspoignant/go-feature-flag"
	"github.com/thomaspoignant/go-feature-flag/ffcontext"
	"github.com/thomaspoignant/go-feature-flag/retriever/fileretriever"
)

// FFlag wraps the feature flag client. Flags come from a local YAML file
// (CORTEX_FLAGS_PATH or the config's flags_path) polled once a minute, so
// experimental behavior can be toggled without a restart.
type FFlag struct {
	Client *ffclient.GoFeatureFlag
}

// NewFFlag builds a flag client over the flags file. A missing or empty path
// yields a disabled client: every flag evaluates to its default.
func NewFFlag(flagsFilePath string) (FFlag, error) {
	if flagsFilePath == "" {
		flagsFilePath = os.Getenv("CORTEX_FLAGS_PATH")
	}
	if flagsFilePath == "" {
		return FFlag{}, nil
	}
	if _, err := os.Stat(flagsFilePath); os.IsNotExist(err) {
		return FFlag{}, nil
	}

	client, err := ffclient.New(ffclient.Config{
		PollingInterval: 60 * time.Second,
		Logger:          log.New(os.Stdout, "", 0),
		Context:         context.Background(),
		Retriever: &fileretriever.Retriever{
			Path: flagsFilePath,
		},
	})
	if err != nil {
		return FFlag{}, err
	}
	return FFlag{Client: client}, nil
}

// IsEnabled evaluates a boolean flag for the given user. Fails open to the
// default (false) on any evaluation error so flag trouble never blocks a
// turn or a maintenance job.
func (f FFlag) IsEnabled(userId, flagName string) bool {
	if f.Client == nil {
		return false
	}
	evalContext := ffcontext.NewEvaluationContext(userId)
	flagValue, err := f.Client.BoolVariation(flagName, evalContext, false)
	if err != nil {
		log.Printf("Error evaluating feature flag %q: %v", flagName, err)
	}
	return flagValue
}
