package relay

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/pipeline"
)

// Kiosk command actions accepted on <prefix>/cmd/<action>.
const (
	CmdCaptureStart = "capture.start"
	CmdCaptureStop  = "capture.stop"
	CmdCaptureClear = "capture.clear"
	CmdClear        = "clear"
	CmdPlaybackStop = "playback.stop"
	CmdGuideStop    = "guide.stop"
	CmdLanguages    = "languages" // payload: JSON array of codes
)

// Controller is the part of pipeline.Host commands drive.
type Controller interface {
	Station() (*pipeline.Station, error)
	SetSelected(codes []string) []string
}

// Commands dispatches kiosk commands to the pipeline.
type Commands struct {
	ctl Controller
	log zerolog.Logger
}

func NewCommands(ctl Controller, log zerolog.Logger) *Commands {
	return &Commands{ctl: ctl, log: log}
}

// Handle runs one command. Errors are logged; commands have no reply.
func (c *Commands) Handle(action string, payload []byte) {
	if err := c.run(action, payload); err != nil {
		c.log.Warn().Err(err).Str("action", action).Msg("kiosk command failed")
		return
	}
	c.log.Info().Str("action", action).Msg("kiosk command")
}

var errUnknownCommand = errors.New("unknown command")

func (c *Commands) run(action string, payload []byte) error {
	if action == CmdLanguages {
		var codes []string
		if err := json.Unmarshal(payload, &codes); err != nil {
			return err
		}
		c.ctl.SetSelected(codes)
		return nil
	}

	st, err := c.ctl.Station()
	if err != nil {
		return err
	}
	switch action {
	case CmdCaptureStart:
		return st.Capture().Start()
	case CmdCaptureStop:
		return st.Capture().Stop()
	case CmdCaptureClear:
		st.Capture().Clear()
		return nil
	case CmdClear:
		st.ClearAll()
		return nil
	case CmdPlaybackStop:
		return st.Results().Stop()
	case CmdGuideStop:
		return st.Guide().Stop()
	default:
		return errUnknownCommand
	}
}
