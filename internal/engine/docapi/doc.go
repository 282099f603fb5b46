// Package docapi implements editing operations made of several primitive
// commands: copying frames with their links, flattening, duplicating
// layers, converting a layer to the background.
//
// Every operation takes an open engine.Transaction and issues its commands
// through it, so the whole operation commits or rolls back as one history
// entry. Preconditions are checked before the first command runs and are
// reported as *sprite.PreconditionError.
//
//	err := doc.Transact(ctx, "Flatten", func(tx *engine.Transaction) error {
//		_, err := docapi.FlattenLayers(tx, "Flattened")
//		return err
//	})
package docapi
