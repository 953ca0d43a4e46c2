package device

// Processor is anything that advances with simulated time.
// dt is the simulated time in seconds since the previous call.
type Processor interface {
	Process(dt float64)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(dt float64)

// Process calls f(dt).
func (f ProcessorFunc) Process(dt float64) { f(dt) }

// BeforeProcessor is implemented by definitions that need a hook before
// their processors run in a cycle.
type BeforeProcessor interface {
	BeforeProcess(dt float64)
}

// AfterProcessor is implemented by definitions that need a hook after
// their processors ran in a cycle.
type AfterProcessor interface {
	AfterProcess(dt float64)
}

// Composite runs a list of processors in order, framed by optional hooks.
type Composite struct {
	Before     func(dt float64)
	After      func(dt float64)
	processors []Processor
}

// Add appends processors.
func (c *Composite) Add(p ...Processor) {
	c.processors = append(c.processors, p...)
}

// Len returns the number of processors.
func (c *Composite) Len() int {
	return len(c.processors)
}

// Process runs Before, every processor, then After.
func (c *Composite) Process(dt float64) {
	if c.Before != nil {
		c.Before(dt)
	}
	for _, p := range c.processors {
		p.Process(dt)
	}
	if c.After != nil {
		c.After(dt)
	}
}
