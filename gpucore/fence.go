package gpucore

// Fence reports whether a batch of submitted GPU work has completed.
//
// Signalled never blocks. An error means the state could not be queried;
// callers treat it as "not signalled" and poll again later.
type Fence interface {
	Signalled() (bool, error)
}

// SignalledFence is a Fence that is always signalled. It stands in for work
// that completed before it was published, such as static eye images.
type SignalledFence struct{}

// Signalled always reports true.
func (SignalledFence) Signalled() (bool, error) { return true, nil }

// FenceSignalled polls f, treating a nil fence as signalled and a query
// error as not signalled.
func FenceSignalled(f Fence) bool {
	if f == nil {
		return true
	}
	ok, err := f.Signalled()
	return err == nil && ok
}
