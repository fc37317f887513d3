package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/sunshine-watchface/internal/companion"
	"github.com/i474232898/sunshine-watchface/internal/render"
	"github.com/i474232898/sunshine-watchface/internal/store"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/watch"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

var validate = validator.New()

// Face is the part of watch.Engine the watch routes drive.
type Face interface {
	Frame() render.Frame
	LastFrame() (render.Frame, bool)
	Snapshot() (weather.Snapshot, bool)
	Status() watch.Status
	Transitions() []watch.Transition
	SetVisible(visible bool)
	SetAmbient(ambient bool)
	TimeTick()
	Reconnect()
}

// RegisterWatchRoutes wires the watch-face handlers into the Fiber app.
func RegisterWatchRoutes(app *fiber.App, face Face) {
	v1 := app.Group("/api/v1")

	v1.Get("/face", func(c *fiber.Ctx) error {
		frame := face.Frame()
		return c.JSON(fiber.Map{
			"frame": frame,
			"lines": frame.Lines(),
		})
	})

	v1.Get("/snapshot", func(c *fiber.Ctx) error {
		snap, ok := face.Snapshot()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no weather data received yet")
		}
		return c.JSON(snap)
	})

	v1.Get("/connection", func(c *fiber.Ctx) error {
		status := face.Status()
		return c.JSON(fiber.Map{
			"state":       status.State.String(),
			"reason":      status.Reason,
			"transitions": transitionViews(face.Transitions()),
		})
	})

	v1.Put("/display", func(c *fiber.Ctx) error {
		var req displayRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Visible != nil {
			face.SetVisible(*req.Visible)
		}
		if req.Ambient != nil {
			face.SetAmbient(*req.Ambient)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/tick", func(c *fiber.Ctx) error {
		face.TimeTick()
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/reconnect", func(c *fiber.Ctx) error {
		face.Reconnect()
		return c.SendStatus(fiber.StatusAccepted)
	})
}

// displayRequest toggles visibility and ambient mode; at least one is required.
type displayRequest struct {
	Visible *bool `json:"visible" validate:"required_without=Ambient"`
	Ambient *bool `json:"ambient" validate:"required_without=Visible"`
}

type transitionView struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Cause string `json:"cause"`
}

func transitionViews(ts []watch.Transition) []transitionView {
	out := make([]transitionView, 0, len(ts))
	for _, t := range ts {
		out = append(out, transitionView{From: t.From.String(), To: t.To.String(), Cause: t.Cause})
	}
	return out
}

// Pusher is the part of companion.Companion the companion routes drive.
type Pusher interface {
	PushLatest() (bool, error)
	Connected() bool
	Responder() *companion.Responder
}

// RegisterCompanionRoutes wires the companion handlers into the Fiber app.
// preferred is the location pushed to the watch.
func RegisterCompanionRoutes(app *fiber.App, service *weather.Service, pusher Pusher, preferred weather.Location) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		loc := preferred
		if c.Query("city") != "" || c.Query("country") != "" {
			locReq, err := parseLocationQuery(c)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			loc = locReq.toLocation()
		}

		snapshot, err := service.GetLatest(loc)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := req.Location.toLocation()
		snapshots, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"location":  loc,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})

	// Manual rows, for setups without a provider key.
	v1.Put("/weather", func(c *fiber.Ctx) error {
		var req manualWeatherRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snap := weather.Snapshot{
			Location:         preferred.Label(),
			WeatherID:        *req.WeatherID,
			HighTempC:        *req.HighTempC,
			LowTempC:         *req.LowTempC,
			ShortDescription: req.ShortDescription,
		}
		if err := service.Save(preferred, snap); err != nil {
			if errors.Is(err, weather.ErrInvalidPayload) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save weather data")
		}

		latest, err := service.GetLatest(preferred)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}
		return c.Status(fiber.StatusCreated).JSON(latest)
	})

	v1.Post("/weather/push", func(c *fiber.Ctx) error {
		pushed, err := pusher.PushLatest()
		if err != nil {
			if errors.Is(err, syncchan.ErrNotConnected) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "sync channel is not connected")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !pushed {
			return fiber.NewError(fiber.StatusNotFound, "no weather data to push")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Get("/sync", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"connected": pusher.Connected(),
			"stats":     pusher.Responder().Stats(),
		})
	})
}

type manualWeatherRequest struct {
	WeatherID        *int     `json:"weatherId" validate:"required"`
	HighTempC        *float64 `json:"maxTemp" validate:"required"`
	LowTempC         *float64 `json:"minTemp" validate:"required"`
	ShortDescription string   `json:"shortDesc"`
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	City    string `validate:"required"`
	Country string `validate:"required"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{
		City:    l.City,
		Country: l.Country,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location locationQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
