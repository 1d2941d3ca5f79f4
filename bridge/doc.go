// Package bridge pairs one WebSocket client connection with one backend
// stream connection that speaks a newline-delimited text protocol, and
// translates between the two until either side closes or fails.
//
//     client --- websocket ---> [ bridge ] --- "line\n" ---> backend
//     client <-- text frame --- [ bridge ] <-- "line\n" ---- backend
//
// Each direction is driven by its own goroutine. The first direction to
// finish decides the outcome of the bridge, and both connections are closed
// together as soon as that happens.
//
// This is the per-connection core of lobby-bridge; the server package
// accepts connections and runs one Bridge for each of them.
package bridge
