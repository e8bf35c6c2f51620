package event

// Filter gates whether a subscription's handler is invoked for a given
// payload. A subscription's filter chain runs in insertion order; all must
// return true.
type Filter interface {
	ShouldProcess(payload any) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(payload any) bool

func (f FilterFunc) ShouldProcess(payload any) bool {
	if f == nil {
		return true
	}
	return f(payload)
}
