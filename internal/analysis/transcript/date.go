package transcript

import "time"

// DateOrder tells how the two leading numeric date fields are read.
type DateOrder string

const (
	DayFirst   DateOrder = "day-first"
	MonthFirst DateOrder = "month-first"
)

type meridiem int

const (
	clock24 meridiem = iota
	ante
	post
)

// header holds the raw numeric fields of a message prefix before the date
// order has been resolved.
type header struct {
	d1, d2, year      int
	hour, minute, sec int
	meridiem          meridiem
}

func (h header) monthDay(order DateOrder) (month, day int) {
	if order == MonthFirst {
		return h.d1, h.d2
	}
	return h.d2, h.d1
}

func (h header) inRange(order DateOrder) bool {
	month, day := h.monthDay(order)
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// timestamp builds the wall-clock instant for the header under order. It
// reports false for values outside the calendar or the clock.
func (h header) timestamp(order DateOrder, loc *time.Location) (time.Time, bool) {
	if !h.inRange(order) {
		return time.Time{}, false
	}
	month, day := h.monthDay(order)

	year := h.year
	if year < 100 {
		year += 2000
	}

	hour := h.hour
	switch h.meridiem {
	case ante, post:
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
		if h.meridiem == post {
			hour += 12
		}
	}
	if hour > 23 || h.minute > 59 || h.sec > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, h.minute, h.sec, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// resolveOrder picks the date order for a whole transcript. An order that
// keeps every header in range beats one that does not; between two such
// orders the one yielding more non-decreasing consecutive timestamps wins,
// and day-first wins ties.
func resolveOrder(headers []header, loc *time.Location) DateOrder {
	dayValid, monthValid := 0, 0
	for _, h := range headers {
		if h.inRange(DayFirst) {
			dayValid++
		}
		if h.inRange(MonthFirst) {
			monthValid++
		}
	}

	dayAll := dayValid == len(headers)
	monthAll := monthValid == len(headers)
	switch {
	case dayAll && !monthAll:
		return DayFirst
	case monthAll && !dayAll:
		return MonthFirst
	case !dayAll && !monthAll:
		if monthValid > dayValid {
			return MonthFirst
		}
		return DayFirst
	}

	if monotonicPairs(headers, MonthFirst, loc) > monotonicPairs(headers, DayFirst, loc) {
		return MonthFirst
	}
	return DayFirst
}

func monotonicPairs(headers []header, order DateOrder, loc *time.Location) int {
	count := 0
	var prev time.Time
	havePrev := false
	for _, h := range headers {
		t, ok := h.timestamp(order, loc)
		if !ok {
			havePrev = false
			continue
		}
		if havePrev && !t.Before(prev) {
			count++
		}
		prev, havePrev = t, true
	}
	return count
}
