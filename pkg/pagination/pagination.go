package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Limits bounds the size of a result page.
type Limits struct {
	Default int
	Max     int
}

// DoseHistory is the page size policy for dose event history reads.
var DoseHistory = Limits{Default: 100, Max: 500}

// Parse converts a raw limit value. Absent, non-numeric and non-positive
// values yield the default; anything above the maximum is capped.
func (l Limits) Parse(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		n = 0
	}
	return l.Clamp(n)
}

// Clamp maps non-positive sizes to the default and caps the rest.
func (l Limits) Clamp(n int) int {
	if n <= 0 {
		n = l.Default
	}
	if n > l.Max {
		return l.Max
	}
	return n
}

// FromContext reads the "limit" query parameter.
func (l Limits) FromContext(c echo.Context) int {
	return l.Parse(c.QueryParam("limit"))
}
