// Command predict classifies a single reading and prints the response as
// JSON. It exits with status 1 when the artifacts cannot be loaded or the
// reading cannot be classified.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"firequest/logging"
	"firequest/ml"
	"firequest/pipeline"
)

func main() {
	defaults := pipeline.DefaultReading()

	modelType := flag.String("model_type", "softmax", "classifier kind: decision_tree or softmax")
	modelPath := flag.String("model_path", "./models/fire_model.json", "classifier artifact path")
	scalerPath := flag.String("scaler_path", "./models/scaler.json", "scaler artifact path")
	brightness := flag.Float64("brightness", defaults.Brightness, "brightness temperature (K)")
	brightT31 := flag.Float64("bright_t31", defaults.BrightT31, "channel 31 brightness temperature (K)")
	frp := flag.Float64("frp", defaults.FRP, "fire radiative power (MW)")
	scan := flag.Float64("scan", defaults.Scan, "along-scan pixel size")
	track := flag.Float64("track", defaults.Track, "along-track pixel size")
	confidence := flag.String("confidence", string(defaults.Confidence), "detection confidence: low, nominal or high")
	logLevel := flag.String("log_level", "error", "log level")
	flag.Parse()

	if err := run(*modelType, *modelPath, *scalerPath, *logLevel, *confidence,
		*brightness, *brightT31, *frp, *scan, *track); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(modelType, modelPath, scalerPath, logLevel, confidence string,
	brightness, brightT31, frp, scan, track float64) error {
	logger, _, err := logging.New(logging.Config{Level: logLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	level, err := pipeline.ParseConfidenceLevel(confidence)
	if err != nil {
		return err
	}

	store, err := ml.LoadStore(ml.ModelConfig{
		ModelType:  modelType,
		ModelPath:  modelPath,
		ScalerPath: scalerPath,
	})
	if err != nil {
		return err
	}
	logger.Debug("model store loaded", zap.Int("features", store.FeatureWidth()))

	resp, err := pipeline.New(store, logger).Run(context.Background(), pipeline.NewSession("cli"), pipeline.Reading{
		Brightness: brightness,
		BrightT31:  brightT31,
		FRP:        frp,
		Scan:       scan,
		Track:      track,
		Confidence: level,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
