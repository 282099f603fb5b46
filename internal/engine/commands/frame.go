package commands

import (
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// AddFrame inserts an empty frame. Cels at or after it move one frame later.
type AddFrame struct {
	at       sprite.Frame
	duration int
	applied  bool
}

// NewAddFrame inserts a frame before at lasting duration milliseconds. A
// non-positive duration copies the duration of the frame before at.
func NewAddFrame(at sprite.Frame, duration int) *AddFrame {
	return &AddFrame{at: at, duration: duration}
}

func (c *AddFrame) OnExecute(d *engine.Document) error {
	s := d.Sprite()
	ms := c.duration
	if ms <= 0 {
		ms = s.FrameDuration(c.at - 1)
		if ms <= 0 {
			ms = sprite.DefaultFrameDuration
		}
	}
	if err := s.InsertFrame(c.at, ms); err != nil {
		return err
	}
	c.duration = ms
	c.applied = true
	return nil
}

func (c *AddFrame) OnUndo(d *engine.Document) error {
	if _, err := d.Sprite().RemoveFrame(c.at); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *AddFrame) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(addedOrRemoved(c.applied, event.TopicFrameAdded, event.TopicFrameRemoved),
		event.ObjectPayload{Frame: int(c.at)})
}

func (c *AddFrame) Label() string { return "New Frame" }
func (c *AddFrame) MemSize() int  { return commandOverhead }

// RemoveFrame deletes a frame together with its cels. Cels after it move
// one frame earlier.
type RemoveFrame struct {
	at       sprite.Frame
	duration int
	cels     *history.Sequence[*engine.Document]
	applied  bool
}

// NewRemoveFrame removes frame at.
func NewRemoveFrame(at sprite.Frame) *RemoveFrame {
	return &RemoveFrame{at: at, cels: history.NewSequence[*engine.Document]("Remove Frame Cels")}
}

func (c *RemoveFrame) OnExecute(d *engine.Document) error {
	s := d.Sprite()
	if c.at < 0 || int(c.at) >= s.TotalFrames() {
		return sprite.ErrFrameOutOfRange
	}
	if s.TotalFrames() == 1 {
		return &sprite.PreconditionError{Op: "remove frame", Reason: "sprite needs at least one frame", Err: sprite.ErrFrameOutOfRange}
	}
	for _, l := range s.ImageLayers() {
		if cel := l.Cel(c.at); cel != nil {
			if err := c.cels.ExecuteAndAdd(d, NewRemoveCel(cel)); err != nil {
				c.rollback(d)
				return err
			}
		}
	}
	return c.removeFrame(d)
}

func (c *RemoveFrame) removeFrame(d *engine.Document) error {
	ms, err := d.Sprite().RemoveFrame(c.at)
	if err != nil {
		c.rollback(d)
		return err
	}
	c.duration = ms
	c.applied = true
	return nil
}

// rollback restores the cels removed by a failed execute.
func (c *RemoveFrame) rollback(d *engine.Document) {
	if err := c.cels.OnUndo(d); err != nil {
		d.Logger().Error("restore cels of frame", zap.Error(err))
	}
	c.cels.OnDispose(d)
	c.cels = history.NewSequence[*engine.Document]("Remove Frame Cels")
}

func (c *RemoveFrame) OnUndo(d *engine.Document) error {
	if err := d.Sprite().InsertFrame(c.at, c.duration); err != nil {
		return err
	}
	if err := c.cels.OnUndo(d); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *RemoveFrame) OnRedo(d *engine.Document) error {
	if err := c.cels.OnRedo(d); err != nil {
		return err
	}
	ms, err := d.Sprite().RemoveFrame(c.at)
	if err != nil {
		return err
	}
	c.duration = ms
	c.applied = true
	return nil
}

func (c *RemoveFrame) OnDispose(d *engine.Document) { c.cels.OnDispose(d) }

func (c *RemoveFrame) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(addedOrRemoved(c.applied, event.TopicFrameRemoved, event.TopicFrameAdded),
		event.ObjectPayload{Frame: int(c.at)})
}

func (c *RemoveFrame) Label() string { return "Remove Frame" }
func (c *RemoveFrame) MemSize() int  { return commandOverhead + c.cels.MemSize() }

// NewSetFrameDuration changes how long a frame is shown.
func NewSetFrameDuration(s *sprite.Sprite, frame sprite.Frame, ms int) engine.Command {
	return &property[*sprite.Sprite, int]{
		label: "Set Frame Duration",
		id:    s.ID(),
		value: ms,
		get:   func(s *sprite.Sprite) int { return s.FrameDuration(frame) },
		set:   func(s *sprite.Sprite, ms int) error { return s.SetFrameDuration(frame, ms) },
		notify: func(d *engine.Document, _ *sprite.Sprite) {
			d.Notify(event.TopicFrameChanged, event.ObjectPayload{Frame: int(frame)})
		},
	}
}

// SetTotalFrames changes the number of frames. Cels in frames dropped by a
// shrink are removed; frames added by a growth copy the last duration.
type SetTotalFrames struct {
	total     int
	durations []int // table before the change
	cels      *history.Sequence[*engine.Document]
}

// NewSetTotalFrames resizes the sprite to total frames.
func NewSetTotalFrames(total int) *SetTotalFrames {
	return &SetTotalFrames{total: total, cels: history.NewSequence[*engine.Document]("Remove Cels")}
}

func (c *SetTotalFrames) OnExecute(d *engine.Document) error {
	s := d.Sprite()
	if c.total < 1 {
		return &sprite.PreconditionError{Op: "set total frames", Reason: "sprite needs at least one frame", Err: sprite.ErrFrameOutOfRange}
	}
	c.durations = s.Durations()
	for _, l := range s.ImageLayers() {
		for _, cel := range l.Cels() {
			if int(cel.Frame()) < c.total {
				continue
			}
			if err := c.cels.ExecuteAndAdd(d, NewRemoveCel(cel)); err != nil {
				c.restore(d)
				return err
			}
		}
	}
	if err := s.SetTotalFrames(c.total); err != nil {
		c.restore(d)
		return err
	}
	return nil
}

func (c *SetTotalFrames) restore(d *engine.Document) {
	if err := c.cels.OnUndo(d); err != nil {
		d.Logger().Error("restore cels after failed frame resize", zap.Error(err))
	}
	c.cels.OnDispose(d)
	c.cels = history.NewSequence[*engine.Document]("Remove Cels")
}

func (c *SetTotalFrames) OnUndo(d *engine.Document) error {
	if err := d.Sprite().SetDurations(c.durations); err != nil {
		return err
	}
	return c.cels.OnUndo(d)
}

func (c *SetTotalFrames) OnRedo(d *engine.Document) error {
	if err := c.cels.OnRedo(d); err != nil {
		return err
	}
	return d.Sprite().SetTotalFrames(c.total)
}

func (c *SetTotalFrames) OnDispose(d *engine.Document) { c.cels.OnDispose(d) }

func (c *SetTotalFrames) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicFrameChanged, event.ObjectPayload{Frame: d.Sprite().TotalFrames()})
}

func (c *SetTotalFrames) Label() string { return "Set Frame Count" }

func (c *SetTotalFrames) MemSize() int {
	return commandOverhead + 8*len(c.durations) + c.cels.MemSize()
}
