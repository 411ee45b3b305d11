package pipeline

// Assemble maps the reading onto the fixed feature order. It fails only when
// the confidence level is not one of the three known values.
func Assemble(reading Reading) (FeatureVector, error) {
	code, err := reading.Confidence.Code()
	if err != nil {
		return FeatureVector{}, err
	}
	return FeatureVector{
		reading.Brightness,
		reading.BrightT31,
		reading.FRP,
		reading.Scan,
		reading.Track,
		float64(code),
	}, nil
}
