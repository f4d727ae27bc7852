// File: worker/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package worker assembles a worker process: one reactor loop, the JSON
// Channel and the Payload Channel to the controlling process, and the
// association registry. Requests are routed by method name; the worker.*
// methods are built in and applications add their own with
// HandleRequest, HandlePayloadRequest and HandlePayloadNotification.
//
// The worker announces itself with a "running" notification and closes
// everything once the Channel closes.
package worker
