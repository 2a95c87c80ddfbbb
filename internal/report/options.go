package report

// Option configures a Printer.
type Option func(*Printer)

// WithPrecision sets the number of decimals printed for rates.
func WithPrecision(digits int) Option {
	return func(p *Printer) {
		if digits >= 0 {
			p.precision = digits
		}
	}
}

// WithMapWidth truncates map names to at most n characters.
func WithMapWidth(n int) Option {
	return func(p *Printer) {
		if n > 0 {
			p.mapWidth = n
		}
	}
}
