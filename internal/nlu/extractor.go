package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"coursebot/internal/logging"
	"coursebot/internal/nlu/timeparse"
	"coursebot/internal/store"
)

// EntityExtractor runs the layered extraction chain: positional student
// separation, an LLM full-entity pass, a local regex catalog, and an
// intent-aware heuristic, each degrading to the next on failure. It never
// returns an error: the worst case is an Entities with every field empty.
type EntityExtractor struct {
	llm     LLMService   // optional
	courses CourseLookup // optional
	logger  logging.Logger
}

// ExtractRequest carries one extraction call's inputs.
type ExtractRequest struct {
	Text       string
	UserID     string
	IntentHint Intent
	// DisableLLM forces the regex-only fast path, used when rule
	// confidence is already high enough to trust.
	DisableLLM bool
}

// NewEntityExtractor builds an extractor. Both collaborators may be nil;
// the local stages then carry the whole load.
func NewEntityExtractor(llm LLMService, courses CourseLookup, logger logging.Logger) *EntityExtractor {
	return &EntityExtractor{llm: llm, courses: courses, logger: logging.OrNop(logger)}
}

// --- pattern catalogs -------------------------------------------------------

// studentLeadPattern isolates a leading person name from the remaining text.
// The boundary set is an exclude-list (time words, digits) rather than an
// allow-list of names, so novel names are not rejected.
var studentLeadPattern = regexp.MustCompile(`^([\p{Han}]{2,3}?)(的)?(今天|明天|明日|後天|后天|大後天|大后天|下週|下周|週|周|星期|禮拜|礼拜|凌晨|早上|上午|中午|下午|晚上|[0-9])`)

// studentPossessivePattern finds a medial "X的...課" owner.
var studentPossessivePattern = regexp.MustCompile(`(小[\p{Han}]{1,2}|[\p{Han}]{2,3})的[\p{Han}]{0,6}(?:課|课|班)`)

// studentNameNoise lists substrings a person name can never contain. Multi
// character words keep legitimate names like 小明 matchable while still
// rejecting time words that share a rune with them.
var studentNameNoise = []string{
	"今天", "明天", "明日", "昨天", "後天", "后天", "下週", "下周", "星期",
	"禮拜", "礼拜", "早上", "上午", "中午", "下午", "晚上", "凌晨", "時間",
	"时间", "取消", "修改", "安排", "調整", "调整", "老師", "老师",
	"課", "课", "班", "點", "点", "週", "周", "每", "查",
}

// segmentPattern is the one-pass smart segmentation over mixed free text:
// each alternative tags a token kind, applied left to right.
var segmentPattern = regexp.MustCompile(`(?P<date>今天|明天|明日|後天|后天|大後天|大后天|下下?(?:週|周|星期|禮拜|礼拜)[一二三四五六日天]|(?:週|周|星期|禮拜|礼拜)[一二三四五六日天]|\d{1,2}月\d{1,2}[日號号])` +
	`|(?P<vague>凌晨|早上|早晨|清晨|上午|中午|下午|傍晚|晚上|晚間|晚间)` +
	`|(?P<spec>\d{1,2}:\d{2}|(?:\d{1,2}|[〇零一二三四五六七八九十兩两]{1,3})[點点時时](?:半|一刻|三刻|\d{1,2}分?)?)` +
	`|(?P<loc>在[\p{Han}A-Za-z0-9]{1,8}(?:上課|上课)|[\p{Han}]{1,4}(?:教室|教學中心|教学中心|中心|大樓|大楼|校區|校区|圖書館|图书馆)|線上|线上|家裡|家里|到府)` +
	`|(?P<student>小[\p{Han}]{1,2})` +
	`|(?P<course>[\p{Han}]{1,6}(?:課|课|班))`)

// subjectPattern is the domain vocabulary of course names: school subjects,
// languages, instruments, arts and sports categories.
var subjectPattern = regexp.MustCompile(`(數學|数学|語文|语文|國文|国文|英語|英语|英文|法語|法语|法文|德語|德语|德文|日語|日语|日文|韓語|韩语|西班牙語|西班牙语|物理|化學|化学|生物|歷史|历史|地理|奧數|奥数|鋼琴|钢琴|小提琴|大提琴|吉他|長笛|长笛|聲樂|声乐|繪畫|绘画|美術|美术|素描|書法|书法|舞蹈|芭蕾|游泳|跆拳道|空手道|武術|武术|圍棋|围棋|象棋|西洋棋|編程|编程|程式|寫作|写作|閱讀|阅读)(課|课|班)?`)

// courseNoise rejects generic-suffix captures that are really time or
// location fragments.
var courseNoise = []string{"今", "明", "昨", "天", "早", "晚", "午", "點", "点", "時", "时", "分", "取消", "不上", "每"}

// Change-verb patterns for the modify/cancel heuristic: course either side
// of the verb.
var (
	courseBeforeVerbPattern = regexp.MustCompile(`(?:把|將|将)?([\p{Han}]{1,6}(?:課|课|班))的?(?:取消|改到|改成|換到|换到|調到|调到|調整|调整|延期|提前|推遲|推迟|挪到)`)
	courseAfterVerbPattern  = regexp.MustCompile(`(?:取消|修改|調整|调整|不上)([\p{Han}]{1,6}(?:課|课|班))`)
	// Record heuristic: a verb of studying followed by a bare subject.
	courseAfterStudyPattern = regexp.MustCompile(`(?:學|学|補|补|教)([\p{Han}]{1,4})`)
)

var (
	locationAtPattern     = regexp.MustCompile(`在([\p{Han}A-Za-z0-9]{1,8}?)(?:上課|上课|見面|见面|進行|进行)`)
	locationSuffixPattern = regexp.MustCompile(`([\p{Han}]{1,4}(?:教室|教學中心|教学中心|大樓|大楼|校區|校区|圖書館|图书馆))`)
	locationWordPattern   = regexp.MustCompile(`(線上|线上|家裡|家里|到府)`)
	// teacherPattern anchors the name on a left boundary so a time or
	// location token butting against it cannot bleed into the capture.
	teacherPattern = regexp.MustCompile(`(?:^|[的和跟在找請请幫帮約约是到點点半，。、\s0-9])([\p{Han}]{1,3})(?:老師|老师)`)

	confirmYesPattern = regexp.MustCompile(`^(好的|好啊|好|可以|沒問題|没问题|確認|确认|確定|确定|OK|ok|嗯|行|對|对)[!！。~～]?$`)
	confirmNoPattern  = regexp.MustCompile(`^(不行|不可以|不要|不用|算了|取消吧)[!！。~～]?$`)

	dailyPattern   = regexp.MustCompile(`每天|每日`)
	weeklyPattern  = regexp.MustCompile(`每(?:週|周|星期|禮拜|礼拜)([一二三四五六日天])?`)
	monthlyPattern = regexp.MustCompile(`每(?:個月|个月|月)(?:(\d{1,2})[日號号]?)?`)
)

var weekdayDigits = map[string]string{
	"一": "1", "二": "2", "三": "3", "四": "4", "五": "5", "六": "6", "日": "7", "天": "7",
}

// courseAliases maps informal names onto their canonical subject.
var courseAliases = map[string]string{
	"英文": "英語", "法文": "法語", "日文": "日語", "德文": "德語",
	"奥数": "奥数", "國語": "國文", "国语": "国文", "画画": "绘画", "畫畫": "繪畫",
}

// --- extraction -------------------------------------------------------------

// ExtractEntities runs the full chain. It never panics outward; any stage
// failure degrades to the next stage and the worst case is an empty result.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, req ExtractRequest) (result Entities) {
	original := req.Text
	result = EmptyEntities(original)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("entity extraction panic recovered: %v", r)
			result = EmptyEntities(original)
		}
	}()

	var candidates []ExtractionCandidate
	workingText := original
	timeText := "" // set when the LLM recombined date+time phrases

	// Stage 1: student separation.
	if name, remaining, ok := separateStudentName(original); ok {
		candidates = append(candidates, ExtractionCandidate{Field: "student_name", Value: name, Strategy: "regex", Confidence: 0.7})
		workingText = remaining
	}

	// Stage 2: LLM full-entity pass.
	llmOK := false
	if !req.DisableLLM && e.llm != nil {
		if ext, err := e.llm.ExtractAllEntities(ctx, workingText); err == nil {
			llmOK = true
			candidates = appendCandidate(candidates, "course_name", ext.CourseName, "llm", 0.9)
			candidates = appendCandidate(candidates, "student", ext.Student, "llm", 0.85)
			candidates = appendCandidate(candidates, "location", ext.Location, "llm", 0.85)
			candidates = appendCandidate(candidates, "teacher", ext.Teacher, "llm", 0.85)
			if combined := joinPhrases(ext.DatePhrase, ext.TimePhrase); combined != "" {
				timeText = combined
			}
		} else {
			e.logger.Debug("llm entity extraction failed, using regex fallback: %v", err)
		}
	}

	// Stage 3: regex fallback catalog.
	if !llmOK {
		candidates = append(candidates, e.segmentCandidates(workingText)...)
	}

	// Stage 4: intent-aware heuristic when no course name surfaced yet.
	if pickCandidate(candidates, "course_name") == "" {
		if heuristic := e.heuristicCourseName(ctx, workingText, req.UserID, req.IntentHint); heuristic != "" {
			candidates = append(candidates, ExtractionCandidate{Field: "course_name", Value: heuristic, Strategy: "heuristic", Confidence: 0.5})
		}
	}

	// Fuzzy disambiguation against stored courses for modify/cancel.
	if req.IntentHint == IntentModifyCourse || req.IntentHint == IntentCancelCourse {
		if name := pickCandidate(candidates, "course_name"); name != "" {
			if stored := e.matchStoredCourse(ctx, req.UserID, name); stored != "" && stored != name {
				candidates = append(candidates, ExtractionCandidate{Field: "course_name", Value: stored, Strategy: "fuzzy", Confidence: 0.95})
			}
		}
	}

	// Stage 5: result assembly.
	result.CourseName = normalizeCourseName(pickCandidate(candidates, "course_name"), original)
	result.StudentName = pickCandidate(candidates, "student_name")
	result.Student = pickCandidate(candidates, "student")
	if result.Student == "" {
		result.Student = result.StudentName
	}
	if result.StudentName == "" {
		result.StudentName = result.Student
	}
	result.Location = pickCandidate(candidates, "location")
	if result.Location == "" {
		result.Location = extractLocation(original)
	}
	if teacher := extractTeacher(original, result.Location); teacher != "" {
		result.Teacher = teacher
	} else {
		result.Teacher = pickCandidate(candidates, "teacher")
	}
	result.Confirmation = detectConfirmation(original)
	// Recurrence comes from the original, pre-substitution text so the
	// marker is never lost to the time-phrase replacement above.
	result.RecurrencePattern = detectRecurrence(original)
	result.TimeInfo = e.resolveTime(ctx, workingText, timeText, req.DisableLLM || llmOK)
	return result
}

func appendCandidate(candidates []ExtractionCandidate, field, value, strategy string, confidence float64) []ExtractionCandidate {
	value = strings.TrimSpace(value)
	if value == "" {
		return candidates
	}
	return append(candidates, ExtractionCandidate{Field: field, Value: value, Strategy: strategy, Confidence: confidence})
}

// pickCandidate returns the highest-confidence value for field; earlier
// candidates win ties.
func pickCandidate(candidates []ExtractionCandidate, field string) string {
	best := ""
	bestConfidence := -1.0
	for _, c := range candidates {
		if c.Field != field || c.Value == "" {
			continue
		}
		if c.Confidence > bestConfidence {
			best, bestConfidence = c.Value, c.Confidence
		}
	}
	return best
}

// separateStudentName isolates a leading or possessive person name.
// Returns the name and the text with the name removed.
func separateStudentName(text string) (name, remaining string, ok bool) {
	if m := studentLeadPattern.FindStringSubmatchIndex(text); m != nil {
		candidate := text[m[2]:m[3]]
		if isPlausibleName(candidate) {
			cut := m[3]
			if m[4] >= 0 { // optional 的
				cut = m[5]
			}
			return candidate, text[cut:], true
		}
	}
	if m := studentPossessivePattern.FindStringSubmatch(text); m != nil {
		candidate := m[1]
		if isPlausibleName(candidate) {
			return candidate, strings.Replace(text, candidate+"的", "", 1), true
		}
	}
	return "", text, false
}

func isPlausibleName(candidate string) bool {
	if n := len([]rune(candidate)); n < 2 || n > 3 {
		return false
	}
	for _, noise := range studentNameNoise {
		if strings.Contains(candidate, noise) {
			return false
		}
	}
	return true
}

// segmentCandidates runs the one-pass segmentation and the subject
// vocabulary over the working text.
func (e *EntityExtractor) segmentCandidates(text string) []ExtractionCandidate {
	var candidates []ExtractionCandidate

	if m := subjectPattern.FindStringSubmatch(text); m != nil {
		candidates = appendCandidate(candidates, "course_name", m[0], "regex", 0.8)
	}

	groups := segmentPattern.SubexpNames()
	for _, match := range segmentPattern.FindAllStringSubmatch(text, -1) {
		for i, group := range groups {
			if i == 0 || group == "" || match[i] == "" {
				continue
			}
			switch group {
			case "loc":
				value := strings.TrimPrefix(match[i], "在")
				value = strings.TrimSuffix(strings.TrimSuffix(value, "上課"), "上课")
				candidates = appendCandidate(candidates, "location", value, "regex", 0.7)
			case "student":
				if isPlausibleName(match[i]) {
					candidates = appendCandidate(candidates, "student", match[i], "regex", 0.6)
				}
			case "course":
				if cleaned := cleanCourseToken(match[i]); cleaned != "" {
					candidates = appendCandidate(candidates, "course_name", cleaned, "regex", 0.7)
				}
			}
		}
	}
	return candidates
}

// cleanCourseToken post-filters a generic suffix capture: strips leading
// particles and rejects tokens that look like time or scheduling noise.
func cleanCourseToken(token string) string {
	for _, prefix := range []string{"的", "是", "在", "把", "将", "將", "一節", "一节", "一堂"} {
		token = strings.TrimPrefix(token, prefix)
	}
	base := strings.TrimRight(token, "課课班")
	if base == "" {
		return ""
	}
	for _, noise := range courseNoise {
		if strings.Contains(base, noise) {
			return ""
		}
	}
	return token
}

// heuristicCourseName applies intent-specific candidate patterns, then ranks
// candidates against the user's stored course names.
func (e *EntityExtractor) heuristicCourseName(ctx context.Context, text, userID string, hint Intent) string {
	var candidates []string
	switch hint {
	case IntentModifyCourse, IntentCancelCourse, IntentCorrection:
		for _, pattern := range []*regexp.Regexp{courseBeforeVerbPattern, courseAfterVerbPattern} {
			if m := pattern.FindStringSubmatch(text); m != nil {
				if cleaned := cleanCourseToken(m[1]); cleaned != "" {
					candidates = append(candidates, cleaned)
				}
			}
		}
	default:
		if m := courseAfterStudyPattern.FindStringSubmatch(text); m != nil {
			if cleaned := cleanCourseToken(m[1]); cleaned != "" {
				candidates = append(candidates, cleaned)
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	// Prefer the candidate that lines up with an existing record.
	for _, candidate := range candidates {
		if stored := e.matchStoredCourse(ctx, userID, candidate); stored != "" {
			return stored
		}
	}
	return candidates[0]
}

// matchStoredCourse recovers the full stored course name: bidirectional
// substring containment first, then fuzzy ranking.
func (e *EntityExtractor) matchStoredCourse(ctx context.Context, userID, name string) string {
	if e.courses == nil || userID == "" || name == "" {
		return ""
	}
	courses, err := e.courses.GetUserCourses(ctx, userID, store.CourseFilter{ActiveOnly: true})
	if err != nil {
		e.logger.Debug("course lookup failed for fuzzy match: %v", err)
		return ""
	}
	names := make([]string, 0, len(courses))
	for _, course := range courses {
		if course.Name == "" {
			continue
		}
		if strings.Contains(course.Name, name) || strings.Contains(name, course.Name) {
			return course.Name
		}
		names = append(names, course.Name)
	}
	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		return matches[0].Str
	}
	return ""
}

// resolveTime resolves a timestamp for the utterance. The recombined LLM
// phrase, when present, replaces the working text; otherwise the full
// working text is tried directly and, on failure, the LLM is asked once to
// isolate the time phrases.
func (e *EntityExtractor) resolveTime(ctx context.Context, workingText, timeText string, skipLLMRetry bool) *timeparse.TimeInfo {
	attempts := []string{}
	if timeText != "" {
		attempts = append(attempts, timeText)
	}
	attempts = append(attempts, workingText)
	for _, attempt := range attempts {
		if parsed, err := timeparse.ParseTimeString(attempt); err == nil {
			info := timeparse.CreateTimeInfo(parsed)
			return &info
		}
	}
	if skipLLMRetry || e.llm == nil {
		return nil
	}
	ext, err := e.llm.ExtractAllEntities(ctx, workingText)
	if err != nil {
		return nil
	}
	combined := joinPhrases(ext.DatePhrase, ext.TimePhrase)
	if combined == "" {
		return nil
	}
	parsed, err := timeparse.ParseTimeString(combined)
	if err != nil {
		return nil
	}
	info := timeparse.CreateTimeInfo(parsed)
	return &info
}

func joinPhrases(datePhrase, timePhrase string) string {
	datePhrase = strings.TrimSpace(datePhrase)
	timePhrase = strings.TrimSpace(timePhrase)
	if datePhrase == "" {
		return timePhrase
	}
	if timePhrase == "" {
		return datePhrase
	}
	return datePhrase + timePhrase
}

func extractLocation(text string) string {
	if m := locationAtPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := locationSuffixPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimPrefix(m[1], "在")
	}
	if m := locationWordPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// extractTeacher finds a 老師-marked name. The known location is removed from
// the text first so a location token butting against the name cannot bleed
// into the capture.
func extractTeacher(text, location string) string {
	if location != "" {
		text = strings.Replace(text, location, "", 1)
	}
	m := teacherPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	// Boundary runes are Han too, so a run of them can still lead the
	// capture; strip them off the front.
	name := strings.TrimLeft(m[1], "的和跟在找請请幫帮約约是到點点半")
	if name == "" {
		return ""
	}
	if location != "" && strings.Contains(location, name) {
		return ""
	}
	if locationSuffixPattern.MatchString(m[0]) {
		return ""
	}
	return name
}

func detectConfirmation(text string) string {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) > 6 {
		return ""
	}
	if confirmYesPattern.MatchString(trimmed) {
		return "yes"
	}
	if confirmNoPattern.MatchString(trimmed) {
		return "no"
	}
	return ""
}

// detectRecurrence synthesizes daily / weekly[+weekday] / monthly[+day]
// patterns.
func detectRecurrence(text string) string {
	if dailyPattern.MatchString(text) {
		return "daily"
	}
	if m := weeklyPattern.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return "weekly:" + weekdayDigits[m[1]]
		}
		return "weekly"
	}
	if m := monthlyPattern.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return "monthly:" + m[1]
		}
		return "monthly"
	}
	return ""
}

// normalizeCourseName applies canonical aliases, appends a class suffix when
// no special suffix is present, and collapses duplicate suffixes. The suffix
// script follows the input text.
func normalizeCourseName(name, originalText string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	suffix := ""
	for _, s := range []string{"課", "课", "班"} {
		if strings.HasSuffix(name, s) {
			suffix = s
			name = strings.TrimSuffix(name, s)
			break
		}
	}
	if canonical, ok := courseAliases[name]; ok {
		name = canonical
	}
	if name == "" {
		return ""
	}
	if suffix == "" {
		if hasSpecialSuffix(name) {
			return name
		}
		if strings.Contains(originalText, "课") || strings.Contains(name, "课") {
			suffix = "课"
		} else {
			suffix = "課"
		}
	}
	name += suffix
	// Collapse duplicated suffixes from over-eager captures.
	for _, dup := range []string{"課課", "课课", "班班"} {
		name = strings.ReplaceAll(name, dup, dup[:len(dup)/2])
	}
	return name
}

// hasSpecialSuffix reports whether the name already ends in a suffix that
// should not receive an extra 課.
func hasSpecialSuffix(name string) bool {
	for _, s := range []string{"營", "营", "團", "团", "社", "坊"} {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
