// Package bridge is the host side of the plugin.
//
// Ownership boundary:
// - the periodic host callback (Adapter): drain the deferred queue, then tick
//   window controllers
// - host-owned plugin state and every mutation of it (Plugin)
// - translating relay messages into commands that capture values only
//
// Plugin methods documented as host thread only assert affinity and refuse to
// mutate when called elsewhere. Status is the one read path open to other
// goroutines; it returns a snapshot published after each mutation.
package bridge
