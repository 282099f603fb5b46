// Package event provides the synchronous notification bus used by the
// document engine.
//
// Commands publish topics such as doc.cel.added or doc.layer.moved after
// they execute, undo or redo. Subscribers register a topic pattern (see
// package topic for wildcard rules) and receive matching events on the
// publishing goroutine, in subscription order.
//
//	bus := event.NewBus(event.WithLogger(logger))
//	sub, err := bus.Subscribe("doc.cel.*", func(ctx context.Context, ev event.Event) error {
//		redraw(ev.Payload.(event.ObjectPayload).Frame)
//		return nil
//	})
//
// A handler error or panic is logged, counted and returned from Publish
// combined with the others; delivery continues with the next subscriber.
package event
