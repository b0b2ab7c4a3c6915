package config

// DefaultTrue is a bool that reads as true when it was never set. Fields use
// it as a pointer with `default:"true"` so that an explicit false in the
// config survives the defaults pass.
type DefaultTrue bool

func (dt *DefaultTrue) Get() bool {
	if dt == nil {
		return true
	}
	return bool(*dt)
}
