package pointers

// Ptr returns a pointer to v. Handy for the optional semantic fields on
// exercise records and for literal test fixtures.
func Ptr[T any](v T) *T { return &v }

func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }
func String(v string) *string    { return &v }

// ValueOr dereferences p, or returns def when p is nil.
func ValueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
