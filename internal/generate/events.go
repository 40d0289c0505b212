package generate

// Stage names the observable milestones of a generation run.
type Stage string

const (
	StageScript   Stage = "script"
	StageVoice    Stage = "voice"
	StageFootage  Stage = "footage"
	StageEncode   Stage = "encode"
	StageMerge    Stage = "merge"
	StageRender   Stage = "render"
	StageFinalize Stage = "finalize"
	StageComplete Stage = "complete"
	StageError    Stage = "error"
)

// Event is one progress milestone: the stage plus a human-readable message.
type Event struct {
	Stage   Stage
	Message string
}

// ProgressFunc receives progress events. A nil ProgressFunc is valid and
// discards events.
type ProgressFunc func(Event)

// ChannelProgress adapts a channel to a ProgressFunc. Events are dropped
// rather than blocking the pipeline when the receiver lags.
func ChannelProgress(ch chan<- Event) ProgressFunc {
	return func(ev Event) {
		select {
		case ch <- ev:
		default:
		}
	}
}
