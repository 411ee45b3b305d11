package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestStandardScalerTransform(t *testing.T) {
	scaler := &StandardScaler{Mean: []float64{10, 20}, Scale: []float64{2, 0}}
	require.NoError(t, scaler.check())

	scaled, err := scaler.Transform([]float64{14, 25})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, scaled)
}

func TestStandardScalerDimensionMismatch(t *testing.T) {
	scaler := &StandardScaler{Mean: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}}
	_, err := scaler.Transform([]float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X has 2 features, but StandardScaler is expecting 3 features")
}

func TestMinMaxScalerTransform(t *testing.T) {
	scaler := &MinMaxScaler{Min: []float64{0, 5}, Max: []float64{10, 5}}
	scaled, err := scaler.Transform([]float64{5, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 2}, scaled)
}

func TestLoadScaler(t *testing.T) {
	path := writeArtifact(t, "scaler.json", `{"mean":[1,2],"scale":[1,1]}`)
	scaler, err := LoadScaler(path)
	require.NoError(t, err)
	assert.IsType(t, &StandardScaler{}, scaler)
	assert.Equal(t, 2, scaler.Width())

	path = writeArtifact(t, "minmax.json", `{"kind":"minmax","min":[0],"max":[10]}`)
	scaler, err = LoadScaler(path)
	require.NoError(t, err)
	assert.IsType(t, &MinMaxScaler{}, scaler)

	path = writeArtifact(t, "bad.json", `{"kind":"robust","mean":[1]}`)
	_, err = LoadScaler(path)
	assert.Error(t, err)
}
