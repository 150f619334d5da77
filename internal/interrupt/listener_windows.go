//go:build windows

package interrupt

// ListenKeys is a no-op on Windows: the console delivers Ctrl+C as an OS
// interrupt signal, which the signal listener already feeds into the same
// channel.
func (c *Controller) ListenKeys(interrupts chan<- struct{}) {}
