package ml

import "fmt"

// StartupError reports a model artifact that could not be loaded. The
// service must not accept requests once one of these is returned.
type StartupError struct {
	Artifact string // "classifier" or "scaler"
	Path     string
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// DimensionError is returned when a vector's width does not match the width
// an artifact was fit with.
type DimensionError struct {
	Component string
	Got       int
	Want      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("X has %d features, but %s is expecting %d features as input", e.Got, e.Component, e.Want)
}
