package username

// SetIntn swaps the suffix source for deterministic tests.
func (r *Reconciler) SetIntn(fn func(n int) int) {
	r.intn = fn
}
