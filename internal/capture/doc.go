// Package capture implements the device-independent capture unit: the
// format catalog, the control registry, the buffer ring, the capture state
// machine and the frame emitter.
//
// A backend implements [Device] on top of some discrete-buffer capture API
// (V4L2, IIDC isochronous receive, ...). The package drives it through
// Idle, Configured and Streaming:
//
//	unit, err := capture.NewUnit(dev, capture.WithHandler(handler))
//	if err != nil {
//		return err
//	}
//	defer unit.Close()
//
//	formats := unit.Formats()
//	if err := unit.Configure(formats[0]); err != nil {
//		return err
//	}
//	if err := unit.Start(); err != nil {
//		return err
//	}
//	for {
//		err := unit.ProduceOne()
//		if errors.Is(err, capture.ErrWouldBlock) {
//			time.Sleep(capture.SuggestedBackoff)
//			continue
//		}
//		if err != nil {
//			return err
//		}
//	}
//
// A Unit is not safe for concurrent use and never starts goroutines of its
// own. Callers serialize access, normally from a single event loop that
// polls [Unit.Fileno].
//
// Frames handed to [FrameHandler.OnFrame] borrow ring memory. The data is
// only valid until OnFrame returns.
package capture
