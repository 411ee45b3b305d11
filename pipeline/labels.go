package pipeline

const UnknownFireType = "Unknown Fire Type"

// Code 1 has no name in the trained label set and falls through to
// UnknownFireType.
var fireTypes = map[int]string{
	0: "Vegetation Fire",
	2: "Static Land Source",
	3: "Offshore Fire",
}

// LabelFor maps a classifier code to its fire-type name.
func LabelFor(code int) string {
	if name, ok := fireTypes[code]; ok {
		return name
	}
	return UnknownFireType
}
