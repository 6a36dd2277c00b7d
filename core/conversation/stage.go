package conversation

import (
	"fmt"
	"strings"
)

// Stage is the coarse position of a session in the dialog script.
// Stages only move forward: start, segmentation, survey, ai_dialog.
type Stage uint8

const (
	StageStart Stage = iota
	StageSegmentation
	StageSurvey
	StageAIDialog
)

var stageNames = [...]string{
	StageStart:        "start",
	StageSegmentation: "segmentation",
	StageSurvey:       "survey",
	StageAIDialog:     "ai_dialog",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// ParseStage maps a persisted stage name back to its value.
func ParseStage(raw string) (Stage, error) {
	for i, name := range stageNames {
		if strings.EqualFold(raw, name) {
			return Stage(i), nil
		}
	}
	return StageStart, fmt.Errorf("unknown stage %q", raw)
}

// Segment is the customer category chosen during segmentation.
type Segment uint8

const (
	SegmentNone Segment = iota
	SegmentCompany
	SegmentIndividual
)

func (s Segment) String() string {
	switch s {
	case SegmentCompany:
		return "company"
	case SegmentIndividual:
		return "individual"
	default:
		return ""
	}
}

// ParseSegment maps a persisted segment name back to its value. Empty input is SegmentNone.
func ParseSegment(raw string) (Segment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return SegmentNone, nil
	case "company":
		return SegmentCompany, nil
	case "individual":
		return SegmentIndividual, nil
	}
	return SegmentNone, fmt.Errorf("unknown segment %q", raw)
}

// Direction tells who authored a logged message.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionSystem   Direction = "system"
)

// Channel is the delivery adapter a session was opened from.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelTelegram Channel = "telegram"
)
