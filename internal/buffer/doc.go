// Package buffer implements the per-connection uTP reliable-stream buffer
// engine: sequence-number arithmetic, reorder buffering, receive queueing,
// window-limited send packetization, retransmission selection, ACK
// processing and advertised-window computation.
//
// The engine is a pure state machine. It never opens a socket or reads the
// clock itself; send timestamps come back from Network.SendPacket, whose
// caller owns the clock. Callers inject a Network and a ProcessQueue and
// drive the engine synchronously from a single owning goroutine.
package buffer
