package navigation

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/ldew/pkg/clinical"
)

// ButtonDisplay is the server directive for the "save and go to next form"
// buttons.
type ButtonDisplay int

const (
	// DisplayDynamic leaves the decision to the live completion status
	DisplayDynamic ButtonDisplay = iota

	// DisplayShow forces the buttons visible whatever the status
	DisplayShow

	// DisplayHide forces the buttons hidden whatever the status
	DisplayHide
)

func (d ButtonDisplay) String() string {
	switch d {
	case DisplayShow:
		return "show"
	case DisplayHide:
		return "hide"
	default:
		return "dynamic"
	}
}

// MarshalJSON encodes the directive as "show", "hide" or null.
func (d ButtonDisplay) MarshalJSON() ([]byte, error) {
	switch d {
	case DisplayShow, DisplayHide:
		return json.Marshal(d.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts "show", "hide" or null.
func (d *ButtonDisplay) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DisplayDynamic
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "show":
		*d = DisplayShow
	case "hide":
		*d = DisplayHide
	default:
		return fmt.Errorf("unknown button display: %q", s)
	}
	return nil
}

// ButtonInput is the current page and what the policy needs to judge it.
type ButtonInput struct {
	Record     string
	Event      *clinical.Event
	Form       string
	Matrix     clinical.AccessMatrix
	Exceptions clinical.FormSet
}

// DecideButtons applies the next-form button table; the first match wins.
//
//	last form of its event                     -> show
//	next form is an exception                  -> show
//	current is an exception, next form allowed -> show
//	current is an exception, next form denied  -> hide
//	otherwise                                  -> dynamic
func DecideButtons(in ButtonInput) ButtonDisplay {
	next, ok := in.Event.NextForm(in.Form)
	if !ok {
		return DisplayShow
	}
	if in.Exceptions.Has(next) {
		return DisplayShow
	}
	if in.Exceptions.Has(in.Form) {
		if in.Matrix.Denied(in.Record, in.Event.ID, next) {
			return DisplayHide
		}
		return DisplayShow
	}
	return DisplayDynamic
}

// Settings is the payload the page script consumes.
type Settings struct {
	Instrument           string        `json:"instrument"`
	IsException          bool          `json:"isException"`
	ForceButtonsDisplay  ButtonDisplay `json:"forceButtonsDisplay"`
	HideNextRecordButton bool          `json:"hideNextRecordButton"`
}

// BuildSettings decides the buttons and packs the page payload.
func BuildSettings(in ButtonInput, hideNextRecordButton bool) Settings {
	return Settings{
		Instrument:           in.Form,
		IsException:          in.Exceptions.Has(in.Form),
		ForceButtonsDisplay:  DecideButtons(in),
		HideNextRecordButton: hideNextRecordButton,
	}
}
