//go:build linux

// Package firewire provides pure Go access to IEEE 1394 nodes through the
// Linux firewire-cdev character devices (/dev/fw*).
//
// A Node issues asynchronous quadlet transactions to the remote node it
// represents, reads the bus cycle timer and owns at most one isochronous
// receive context:
//
//	node, _ := firewire.Open("/dev/fw1")
//	defer node.Close()
//
//	v, _ := node.ReadQuadlet(0xfffff0f00400)
//	_ = node.WriteQuadlet(0xfffff0f00614, 0x80000000)
//
// The descriptor is non-blocking. Transactions wait for their response with
// a bounded poll, while isochronous interrupts are queued for the receive
// context and drained with IsoContext.Dequeue.
package firewire
