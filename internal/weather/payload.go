package weather

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/sunshine-watchface/internal/syncchan"
)

// Item paths shared by the watch and the companion.
const (
	PathWeatherUpdate = "/weather_update"
	PathWeather       = "/weather"
)

// Payload keys.
const (
	KeyToken     = "token"
	KeyTime      = "time"
	KeyLocation  = "location"
	KeyWeatherID = "weatherId"
	KeyMaxTemp   = "maxTemp"
	KeyMinTemp   = "minTemp"
	KeyShortDesc = "shortDesc"
)

// ErrInvalidPayload is wrapped by every ValidationError.
var ErrInvalidPayload = errors.New("invalid weather payload")

// ValidationError describes why a /weather payload was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidPayload, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the weather tags registered:
// "notnan" rejects NaN floats and "owmcode" requires a known condition code.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("notnan", func(fl validator.FieldLevel) bool {
			return !math.IsNaN(fl.Field().Float())
		})
		_ = v.RegisterValidation("owmcode", func(fl validator.FieldLevel) bool {
			return IsKnownWeatherID(int(fl.Field().Int()))
		})
		validate = v
	})
	return validate
}

// Validate checks the snapshot's field constraints.
func (s Snapshot) Validate() error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
	return &ValidationError{Field: "snapshot", Reason: err.Error()}
}

// DecodeSnapshot parses a /weather payload. Every required field must be
// present with the right type; no partially decoded snapshot is ever returned.
func DecodeSnapshot(data syncchan.DataMap) (Snapshot, error) {
	var snap Snapshot

	ts, ok := data.GetLong(KeyTime)
	if !ok {
		return Snapshot{}, missingOrMistyped(data, KeyTime, syncchan.TypeLong)
	}
	id, ok := data.GetInt(KeyWeatherID)
	if !ok {
		return Snapshot{}, missingOrMistyped(data, KeyWeatherID, syncchan.TypeInt)
	}
	high, ok := data.GetDouble(KeyMaxTemp)
	if !ok {
		return Snapshot{}, missingOrMistyped(data, KeyMaxTemp, syncchan.TypeDouble)
	}
	low, ok := data.GetDouble(KeyMinTemp)
	if !ok {
		return Snapshot{}, missingOrMistyped(data, KeyMinTemp, syncchan.TypeDouble)
	}

	if data.Has(KeyLocation) {
		loc, ok := data.GetString(KeyLocation)
		if !ok {
			return Snapshot{}, missingOrMistyped(data, KeyLocation, syncchan.TypeString)
		}
		if loc == "" {
			return Snapshot{}, &ValidationError{Field: KeyLocation, Reason: "empty"}
		}
		snap.Location = loc
	}
	if data.Has(KeyShortDesc) {
		desc, ok := data.GetString(KeyShortDesc)
		if !ok {
			return Snapshot{}, missingOrMistyped(data, KeyShortDesc, syncchan.TypeString)
		}
		snap.ShortDescription = desc
	}

	snap.ObservedAtMs = ts
	snap.WeatherID = id
	snap.HighTempC = high
	snap.LowTempC = low

	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// EncodeSnapshot builds the /weather payload for snap.
func EncodeSnapshot(snap Snapshot) syncchan.DataMap {
	data := syncchan.DataMap{}
	data.PutLong(KeyTime, snap.ObservedAtMs)
	if snap.Location != "" {
		data.PutString(KeyLocation, snap.Location)
	}
	data.PutInt(KeyWeatherID, snap.WeatherID)
	data.PutDouble(KeyMaxTemp, snap.HighTempC)
	data.PutDouble(KeyMinTemp, snap.LowTempC)
	data.PutString(KeyShortDesc, snap.ShortDescription)
	return data
}

// NewUpdateRequest builds the /weather_update payload carrying token.
func NewUpdateRequest(token string) syncchan.DataMap {
	data := syncchan.DataMap{}
	data.PutString(KeyToken, token)
	return data
}

func missingOrMistyped(data syncchan.DataMap, key, want string) error {
	if !data.Has(key) {
		return &ValidationError{Field: key, Reason: "missing"}
	}
	return &ValidationError{Field: key, Reason: fmt.Sprintf("expected %s, got %T", want, data[key])}
}
