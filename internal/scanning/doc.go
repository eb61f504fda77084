// Package scanning is the portsweep scanning engine.
//
// A Coordinator turns a ScanRequest into a Session. Requests are validated
// and the target resolved synchronously; failures come back as
// *errors.ConfigError or a resolution *errors.ScanError and leave the
// current session untouched. A valid request cancels the running session,
// waits for its workers, and installs the new one.
//
// Each Session runs one control goroutine through the states
//
//	resolving -> fingerprinting -> scanning -> completed | canceled
//
// The OS guess is taken once before probing. Scanning fills a WorkQueue
// with the whole port range and starts exactly Workers goroutines, each
// looping take -> probe -> record -> progress until the queue is empty.
// Cancellation drains the queue without probing.
//
// # Events
//
// Session.Events delivers os_guessed, open_port, progress and
// scan_complete events to a single consumer. The channel is buffered for
// the whole scan so the engine never blocks on a slow reader, and it is
// closed after scan_complete.
//
// # Probing
//
// A Prober performs one TCP connect per port. On success it writes a short
// greeting and reads at most one buffer of banner data, decoded as UTF-8
// with invalid bytes replaced. Open ports that send nothing are recorded
// with the NoBanner sentinel. Connection failures are classified but never
// retried.
package scanning
