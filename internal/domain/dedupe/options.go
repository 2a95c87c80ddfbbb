package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithExpected presizes the set for a batch of n jobs.
func WithExpected(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.expected = n
		}
	}
}
