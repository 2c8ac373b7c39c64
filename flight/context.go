package flight

// Context is the value of the context parameter for discovery requests, it is
// also embedded in the flight command
type Context string

const (
	// ContextSource is used when discovering data assets that will be read
	ContextSource Context = "source"
	// ContextTarget is used when discovering paths relative to connections
	// that will be written
	ContextTarget Context = "target"
)

func (c Context) String() string {
	return string(c)
}
