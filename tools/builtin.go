package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/feiskyer/toolagent/internal/exprcalc"
)

const (
	// TimestampLayout is the format returned by the clock tool.
	TimestampLayout = "2006-01-02 15:04:05"

	// WeatherToday is returned by the weather stub for today's date.
	WeatherToday = "It's sunny today with a high of 25°C and a light breeze."
	// WeatherUnavailable is returned by the weather stub for any other date.
	WeatherUnavailable = "Sorry, weather information is only available for today."
)

// Calculator evaluates arithmetic expressions.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Name() string { return "Calculator" }

func (c *Calculator) Description() string {
	return "Use this tool to evaluate mathematical expressions. Provide the expression as a string, and it will return the result."
}

func (c *Calculator) InputDescription() string {
	return "Arithmetic expression, e.g. 25 * 4 + 10. Supports + - * / // % ** parentheses and functions such as sqrt, abs, round, min, max."
}

// Call never fails: invalid expressions are reported as an "Error: ..." result
// so the model can correct itself.
func (c *Calculator) Call(_ context.Context, input string) (string, error) {
	v, err := exprcalc.Evaluate(input)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return exprcalc.Format(v), nil
}

// Clock reports the current local time.
type Clock struct {
	now func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Name() string { return "current_time" }

func (c *Clock) Description() string {
	return "Returns the current date and time formatted as YYYY-MM-DD HH:MM:SS."
}

func (c *Clock) InputDescription() string {
	return "Ignored; pass an empty string."
}

func (c *Clock) Call(_ context.Context, _ string) (string, error) {
	return c.now().Format(TimestampLayout), nil
}

// Reverser reverses strings.
type Reverser struct{}

func NewReverser() *Reverser { return &Reverser{} }

func (r *Reverser) Name() string { return "reverse_string" }

func (r *Reverser) Description() string {
	return "Reverses the order of the characters in the given text."
}

func (r *Reverser) InputDescription() string {
	return "The text to reverse."
}

func (r *Reverser) Call(_ context.Context, input string) (string, error) {
	return Reverse(input), nil
}

// Reverse returns s with its rune order inverted.
func Reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// Weather is a stub forecast that only knows about today.
type Weather struct {
	now func() time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func NewWeather(now func() time.Time) *Weather {
	if now == nil {
		now = time.Now
	}
	return &Weather{now: now}
}

func (w *Weather) Name() string { return "weather" }

func (w *Weather) Description() string {
	return "Returns the weather forecast for a given date. Only today's forecast is available."
}

func (w *Weather) InputDescription() string {
	return "Date in YYYY-MM-DD format, or the word today."
}

func (w *Weather) Call(_ context.Context, input string) (string, error) {
	if w.isToday(input) {
		return WeatherToday, nil
	}
	return WeatherUnavailable, nil
}

func (w *Weather) isToday(input string) bool {
	now := w.now()
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "today") {
		return true
	}

	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, input, now.Location())
		if err != nil {
			continue
		}
		y1, m1, d1 := d.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	return false
}
