package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/i474232898/sunshine-watchface/internal/weather"
)

const (
	separator   = ":"
	placeholder = "--"
	degree      = "°"
)

// Options are the device settings a frame depends on.
type Options struct {
	Use24Hour bool
	Location  *time.Location
}

// Frame is the laid-out content of one paint of the watch face.
type Frame struct {
	At            time.Time         `json:"at"`
	Ambient       bool              `json:"ambient"`
	Hour          string            `json:"hour"`
	Minute        string            `json:"minute"`
	ShowSeparator bool              `json:"showSeparator"`
	AmPm          string            `json:"amPm,omitempty"`
	Date          string            `json:"date"`
	HasWeather    bool              `json:"hasWeather"`
	High          string            `json:"high"`
	Low           string            `json:"low"`
	Condition     weather.Condition `json:"condition"`
	Description   string            `json:"description,omitempty"`
	Location      string            `json:"location,omitempty"`
}

// Render lays out a frame for now. A nil snapshot renders the explicit no-data state.
func Render(now time.Time, snap *weather.Snapshot, ambient bool, opts Options) Frame {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	f := Frame{
		At:      now,
		Ambient: ambient,
		Minute:  fmt.Sprintf("%02d", local.Minute()),
		Date:    strings.ToUpper(local.Format("Mon, Jan 2 2006")),
		// Ambient frames are static, so the separator stays on.
		ShowSeparator: ambient || now.UnixMilli()%1000 < 500,
	}

	if opts.Use24Hour {
		f.Hour = fmt.Sprintf("%02d", local.Hour())
	} else {
		h := local.Hour() % 12
		if h == 0 {
			h = 12
		}
		f.Hour = fmt.Sprintf("%d", h)
		f.AmPm = "AM"
		if local.Hour() >= 12 {
			f.AmPm = "PM"
		}
	}

	if snap == nil {
		f.High = placeholder
		f.Low = placeholder
		f.Condition = weather.ConditionUnknown
		return f
	}

	f.HasWeather = true
	f.High = formatTemp(snap.HighTempC)
	f.Low = formatTemp(snap.LowTempC)
	f.Condition = snap.Condition()
	f.Description = snap.ShortDescription
	f.Location = snap.Location
	return f
}

// formatTemp rounds half up, matching how the companion app displays temperatures.
func formatTemp(c float64) string {
	return fmt.Sprintf("%d%s", int64(math.Floor(c+0.5)), degree)
}

// Lines returns the frame as text rows, top to bottom.
func (f Frame) Lines() []string {
	sep := " "
	if f.ShowSeparator {
		sep = separator
	}
	clock := f.Hour + sep + f.Minute
	if f.AmPm != "" {
		clock += " " + f.AmPm
	}

	lines := []string{clock, f.Date, strings.Repeat("─", 8)}
	if !f.HasWeather {
		return append(lines, "no weather data")
	}

	temps := f.High + " " + f.Low
	if f.Condition != weather.ConditionUnknown {
		temps = "[" + string(f.Condition) + "] " + temps
	}
	lines = append(lines, temps)
	if f.Location != "" {
		lines = append(lines, f.Location)
	}
	return lines
}

func (f Frame) String() string {
	return strings.Join(f.Lines(), "\n")
}
