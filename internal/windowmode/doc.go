// Package windowmode owns window mode transitions.
//
// Ownership boundary:
// - recording mode intents from any goroutine (last write wins)
// - resolving composite intents against the live VR flag at apply time
// - applying the concrete mode through the host windowing API, host thread only
//
// The host windowing API must not change modes while a frame is being drawn,
// so Request only records; Tick, run from a host periodic callback, applies.
// Intermediate intents between two ticks are dropped on purpose. Callers that
// need every intermediate mode must queue them themselves.
package windowmode
