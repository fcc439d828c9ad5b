package docsync

// RefCell holds a lazily computed fingerprint.
// It is either unset or holds a cached value,
// and stays that way until Refresh or Reset is called.
//
// A RefCell is not safe for concurrent use.
type RefCell struct {
	ref Ref
	ok  bool
}

// Get returns the cached value,
// calling compute to produce and cache it if the cell is unset.
// A failed computation leaves the cell unset.
func (c *RefCell) Get(compute func() (Ref, error)) (Ref, error) {
	if c.ok {
		return c.ref, nil
	}
	return c.Refresh(compute)
}

// Refresh always calls compute,
// replacing whatever the cell held.
func (c *RefCell) Refresh(compute func() (Ref, error)) (Ref, error) {
	ref, err := compute()
	if err != nil {
		c.Reset()
		return Zero, err
	}
	c.ref, c.ok = ref, true
	return ref, nil
}

// Cached reports the cached value, if any, without computing anything.
func (c *RefCell) Cached() (Ref, bool) {
	return c.ref, c.ok
}

// Reset returns the cell to the unset state.
func (c *RefCell) Reset() {
	c.ref, c.ok = Zero, false
}
