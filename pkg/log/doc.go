// Package log records a protocol capture of a channelize client.
//
// The capture is independent of operational logging. Each Event describes
// one thing that crossed the client boundary or changed its state: a hub
// frame, a REST subscribe call, a connection or subscription transition,
// or a correlation error. Events carry the connection id, domain and
// request id so a single subscription can be followed end to end.
//
// Sinks implement Logger. FileLogger appends CBOR records to a .clog file,
// SlogAdapter prints events at debug level and MultiLogger combines them:
//
//	fl, _ := log.NewFileLogger("session.clog")
//	capture := log.NewMultiLogger(fl, log.NewSlogAdapter(logger)).Logger()
//
// Reader and Filter read a capture back; cmd/channelize-log builds on them.
package log
