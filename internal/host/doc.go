// Package host describes the embedding host as seen from the bridge.
//
// Ownership boundary:
// - periodic callback registration (flight-loop style scheduling)
// - the windowing API used to apply window modes
// - the VR status flag
//
// Sim is a deterministic in-process host used by the terminal front end and by
// tests. It never spins its own thread: whoever calls Step or Run is the host.
package host
