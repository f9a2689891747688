package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Call-control instructions are returned to the carrier as TwiML-style
// markup. This is a minimal builder; no provider SDK dependency.

type InstructionKind string

const (
	// InstructionConference greets the caller and parks them in a named
	// conference room with hold music until an agent joins.
	InstructionConference InstructionKind = "conference"

	// InstructionHangup plays a message and hangs up. The generic "all
	// agents busy" fallback uses this; a raw error is never surfaced to
	// the caller.
	InstructionHangup InstructionKind = "hangup"
)

// Instruction is the call-control document handed back to the carrier.
type Instruction struct {
	Kind InstructionKind

	Greeting       string
	ConferenceRoom string
	HoldMusicURL   string

	Message string
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	WaitURL string `xml:"waitUrl,attr,omitempty"`
	Room    string `xml:",chardata"`
}

// RenderInstruction serializes an Instruction to carrier markup.
func RenderInstruction(in Instruction) (string, error) {
	var r twimlResponse

	switch in.Kind {
	case InstructionConference:
		if strings.TrimSpace(in.ConferenceRoom) == "" {
			return "", errors.New("telephony: conference room required")
		}
		if in.Greeting != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: in.Greeting})
		}
		r.Verbs = append(r.Verbs, twimlDial{Conference: &twimlConference{
			WaitURL: in.HoldMusicURL,
			Room:    in.ConferenceRoom,
		}})
	case InstructionHangup:
		if in.Message != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: in.Message})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	default:
		return "", errors.New("telephony: unknown instruction kind")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
