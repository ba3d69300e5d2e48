// Package coordinator runs at most one generation job at a time.
//
// A Coordinator owns the single live job. Submit preempts whatever is live
// (context cancel plus a hard Session.Abort, both under the state mutex) and
// hands the new job to one worker goroutine that performs readiness wait,
// retrieval and generation serially. Events produced on the worker are
// queued and delivered to the job's Sink by one dispatcher goroutine, so a
// sink never sees concurrent calls.
//
// Events of a cancelled job are dropped at dispatch. Cancel, CancelJob and a
// preempting Submit wait on a delivery barrier before returning, so once they
// return no further event of the cancelled job reaches its sink. The barrier
// means a Sink must not call back into the Coordinator from Deliver, Fail or
// Close.
package coordinator
