package matrix

// DeviceMatrix is the stamping surface handed to element models. Indices are
// 0-based node ids; additions accumulate.
type DeviceMatrix interface {
	Size() int
	AddElement(i, j int, value complex128)
}
