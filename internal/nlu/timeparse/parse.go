package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	clockPattern    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	hourPattern     = regexp.MustCompile(`([0-9]{1,2}|[〇零一二三四五六七八九十兩两]{1,3})\s*[點点時时](半|一刻|三刻|[0-9]{1,2}分?|[〇零一二三四五六七八九十]{1,3}分)?`)
	explicitPattern = regexp.MustCompile(`(\d{1,2})月(\d{1,2})[日號号]`)
	weekdayPattern  = regexp.MustCompile(`(下+)?\s*(?:週|周|星期|禮拜|礼拜)([一二三四五六日天])`)
)

// dayOffsets are checked longest-first so 大後天 is not consumed as 後天.
var dayOffsets = []struct {
	word   string
	offset int
}{
	{"大後天", 3}, {"大后天", 3},
	{"後天", 2}, {"后天", 2},
	{"明天", 1}, {"明日", 1}, {"明早", 1}, {"明晚", 1},
	{"今天", 0}, {"今日", 0}, {"今晚", 0},
}

type daypart int

const (
	daypartNone daypart = iota
	daypartEarly        // 凌晨
	daypartMorning
	daypartNoon
	daypartAfternoon
	daypartEvening
)

var daypartWords = []struct {
	word string
	part daypart
}{
	{"凌晨", daypartEarly},
	{"早上", daypartMorning}, {"早晨", daypartMorning}, {"清晨", daypartMorning},
	{"上午", daypartMorning}, {"明早", daypartMorning},
	{"中午", daypartNoon},
	{"下午", daypartAfternoon}, {"午後", daypartAfternoon}, {"午后", daypartAfternoon},
	{"傍晚", daypartEvening}, {"晚上", daypartEvening}, {"晚間", daypartEvening},
	{"晚间", daypartEvening}, {"夜裡", daypartEvening}, {"夜里", daypartEvening},
	{"今晚", daypartEvening}, {"明晚", daypartEvening},
}

var cnDigits = map[rune]int{
	'〇': 0, '零': 0, '一': 1, '二': 2, '兩': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var cnWeekdays = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6, "日": 7, "天": 7,
}

// ParseTimeString resolves a natural-language time phrase relative to the
// current wall clock. It returns a *ParseError when no usable time of day can
// be recovered from the text.
func ParseTimeString(text string) (time.Time, error) {
	return ParseTimeStringAt(text, time.Now())
}

// ParseTimeStringAt is ParseTimeString with an injectable reference time,
// used by tests and by correction handling to stay on the original day.
func ParseTimeStringAt(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, newParseError(text, "empty input")
	}

	day, dayFound := resolveDate(text, now)
	part := resolveDaypart(text)

	hour, minute, hourFound := resolveClock(text)
	if !hourFound {
		// A date plus a day-part word is still schedulable; pick the
		// customary session hour for that part of the day.
		if dayFound && part != daypartNone {
			hour, minute = defaultHour(part), 0
		} else {
			return time.Time{}, newParseError(text, "no time of day found")
		}
	}
	hour = adjustHour(hour, part)
	if hour > 23 || minute > 59 {
		return time.Time{}, newParseError(text, "hour or minute out of range")
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), nil
}

// resolveDate finds the day the phrase refers to. Precedence: explicit
// month/day, then weekday reference, then relative day word, then today.
func resolveDate(text string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := explicitPattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		dayNum, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && dayNum >= 1 && dayNum <= 31 {
			candidate := time.Date(now.Year(), time.Month(month), dayNum, 0, 0, 0, 0, now.Location())
			if candidate.Before(today) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate, true
		}
	}

	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		target := cnWeekdays[m[2]]
		cur := int(now.Weekday())
		if cur == 0 {
			cur = 7
		}
		weeksAhead := len([]rune(m[1])) // number of 下 prefixes
		var delta int
		if weeksAhead == 0 {
			// Bare 週X: the nearest strictly future occurrence.
			delta = (target - cur + 7) % 7
			if delta == 0 {
				delta = 7
			}
		} else {
			// 下週X names a day of the next calendar week (weeks start on
			// Monday), not merely the next occurrence: 下週三 said on a
			// Tuesday is eight days out, not tomorrow.
			toMonday := (8 - cur) % 7
			if toMonday == 0 {
				toMonday = 7
			}
			delta = toMonday + (target - 1) + 7*(weeksAhead-1)
		}
		return today.AddDate(0, 0, delta), true
	}

	for _, d := range dayOffsets {
		if strings.Contains(text, d.word) {
			return today.AddDate(0, 0, d.offset), true
		}
	}
	return today, false
}

func resolveDaypart(text string) daypart {
	for _, w := range daypartWords {
		if strings.Contains(text, w.word) {
			return w.part
		}
	}
	return daypartNone
}

// resolveClock extracts the hour and minute. A HH:MM token wins; otherwise
// the X點Y / X时Y形式 with either Arabic or Chinese numerals.
func resolveClock(text string) (hour, minute int, ok bool) {
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, true
	}
	m := hourPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hour, ok = parseNumeral(m[1])
	if !ok || hour > 24 {
		return 0, 0, false
	}
	minute = parseMinute(m[2])
	return hour, minute, true
}

func parseMinute(token string) int {
	switch token {
	case "":
		return 0
	case "半":
		return 30
	case "一刻":
		return 15
	case "三刻":
		return 45
	}
	token = strings.TrimSuffix(token, "分")
	if n, err := strconv.Atoi(token); err == nil {
		return n
	}
	if n, ok := parseNumeral(token); ok {
		return n
	}
	return 0
}

// parseNumeral converts either Arabic digits or a Chinese numeral in the
// range 0..99 (一, 十, 十五, 二十, 二十三...) to an int.
func parseNumeral(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	runes := []rune(s)
	tens, units := 0, 0
	seenTen := false
	for _, r := range runes {
		if r == '十' {
			if seenTen {
				return 0, false
			}
			seenTen = true
			if tens == 0 {
				tens = 1
			}
			continue
		}
		d, found := cnDigits[r]
		if !found {
			return 0, false
		}
		if seenTen {
			units = d
		} else {
			tens = d
		}
	}
	if seenTen {
		return tens*10 + units, true
	}
	return tens, true
}

// adjustHour maps a 12-hour reading onto the 24-hour clock using the
// day-part context. With no day part, small hours are read as afternoon
// since tutoring sessions cluster there.
func adjustHour(hour int, part daypart) int {
	switch part {
	case daypartEarly:
		return hour
	case daypartMorning:
		return hour
	case daypartNoon:
		if hour >= 1 && hour <= 3 {
			return hour + 12
		}
		return hour
	case daypartAfternoon, daypartEvening:
		if hour < 12 {
			return hour + 12
		}
		return hour
	default:
		if hour >= 1 && hour <= 6 {
			return hour + 12
		}
		return hour
	}
}

func defaultHour(part daypart) int {
	switch part {
	case daypartEarly:
		return 6
	case daypartMorning:
		return 9
	case daypartNoon:
		return 12
	case daypartAfternoon:
		return 15
	default:
		return 20
	}
}
