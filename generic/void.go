package generic

// Void is a zero-size placeholder for "no value", usable as a map value type.
type Void = struct{}

func NewVoid() Void {
	return Void{}
}
