package daterange

import (
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/music-digest/app/feed"
)

const DateLayout = "2006-01-02"

// Range is an inclusive pair of instants covering whole days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Args selects a range. The first non-empty field in the order
// Range, Date, Days wins; with none set the range is yesterday.
type Args struct {
	Range *[2]string
	Date  string
	Days  int
}

type Resolver struct {
	Now      func() time.Time
	Location *time.Location
}

func NewResolver(location *time.Location) *Resolver {
	return &Resolver{Now: time.Now, Location: location}
}

func (r *Resolver) Resolve(args Args) (Range, error) {
	switch {
	case args.Range != nil:
		return r.Between(args.Range[0], args.Range[1])
	case args.Date != "":
		return r.Day(args.Date)
	case args.Days > 0:
		return r.PastDays(args.Days)
	case args.Days < 0:
		return Range{}, fmt.Errorf("days must be positive, got %d", args.Days)
	default:
		return r.Yesterday(), nil
	}
}

func (r *Resolver) Yesterday() Range {
	yesterday := r.today().AddDate(0, 0, -1)
	return Range{Start: startOfDay(yesterday), End: endOfDay(yesterday)}
}

// Day covers the whole of date, given as YYYY-MM-DD.
func (r *Resolver) Day(date string) (Range, error) {
	d, err := r.parse(date)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: startOfDay(d), End: endOfDay(d)}, nil
}

// Between covers start through end inclusive. A reversed pair is kept as
// given and contains nothing.
func (r *Resolver) Between(start, end string) (Range, error) {
	s, err := r.parse(start)
	if err != nil {
		return Range{}, err
	}
	e, err := r.parse(end)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: startOfDay(s), End: endOfDay(e)}, nil
}

// PastDays covers the days full days before today: [today-days, yesterday].
func (r *Resolver) PastDays(days int) (Range, error) {
	if days <= 0 {
		return Range{}, fmt.Errorf("days must be positive, got %d", days)
	}
	today := r.today()
	return Range{
		Start: startOfDay(today.AddDate(0, 0, -days)),
		End:   endOfDay(today.AddDate(0, 0, -1)),
	}, nil
}

func (r *Resolver) parse(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), r.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
	}
	return d, nil
}

func (r *Resolver) today() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return startOfDay(now().In(r.location()))
}

func (r *Resolver) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, t.Location())
}

// Contains reports whether t falls inside the range, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r Range) String() string {
	return FormatDateOnly(r.Start) + " to " + FormatDateOnly(r.End)
}

// Window converts the range into the fetch window used by sources.
func (r Range) Window() *feed.Window {
	return &feed.Window{Start: r.Start, End: r.End}
}

// FormatShort renders t as MM-DD HH:MM.
func FormatShort(t time.Time) string {
	return t.Format("01-02 15:04")
}

func FormatDateOnly(t time.Time) string {
	return t.Format(DateLayout)
}
