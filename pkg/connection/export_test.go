package connection

import "time"

// SetReconnectDelay overrides the reconnect delay for tests.
func (c *Connection) SetReconnectDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectDelay = d
}
