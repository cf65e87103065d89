package nlu

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

const (
	// baseConfidence is awarded for the first matched keyword of a rule.
	baseConfidence = 0.8
	// bonusPerExtraKeyword is added per additional distinct matched keyword.
	bonusPerExtraKeyword = 0.1
)

// Rule is one keyword/exclusion/priority entry of the classifier. Any
// exclusion hit zeroes the rule's confidence regardless of keyword matches.
type Rule struct {
	Intent     Intent   `yaml:"intent"`
	Keywords   []string `yaml:"keywords"`
	Exclusions []string `yaml:"exclusions"`
	Priority   int      `yaml:"priority"`
}

// IntentMatch is the classifier output.
type IntentMatch struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the deterministic keyword rule matcher. It is pure: given a
// fixed rule set the same text always yields the same match, and no I/O
// happens on the request path.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over the given rules, preserving
// declaration order for tie-breaking.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// AnalyzeIntent scores every rule against text and returns the best match.
// Ties on confidence break by priority (higher wins), then declaration order.
// When no rule scores above zero the result is {unknown, 0}.
func (c *Classifier) AnalyzeIntent(text string) IntentMatch {
	best := IntentMatch{Intent: IntentUnknown, Confidence: 0}
	bestPriority := 0
	for _, rule := range c.rules {
		confidence := scoreRule(rule, text)
		if confidence > best.Confidence ||
			(confidence > 0 && confidence == best.Confidence && rule.Priority > bestPriority) {
			best = IntentMatch{Intent: rule.Intent, Confidence: confidence}
			bestPriority = rule.Priority
		}
	}
	return best
}

func scoreRule(rule Rule, text string) float64 {
	for _, exclusion := range rule.Exclusions {
		if exclusion != "" && strings.Contains(text, exclusion) {
			return 0
		}
	}
	matched := 0
	seen := make(map[string]bool, len(rule.Keywords))
	for _, keyword := range rule.Keywords {
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		if strings.Contains(text, keyword) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return clampConfidence(baseConfidence + bonusPerExtraKeyword*float64(matched-1))
}

// DefaultRules is the compiled-in rule set covering simplified and
// traditional script variants of the scheduling vocabulary.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:   IntentRecordCourse,
			Priority: 1,
			Keywords: []string{
				"課", "课", "上課", "上课", "約課", "约课", "安排", "預約", "预约",
				"補習", "补习", "輔導", "辅导", "報名", "报名",
			},
			Exclusions: []string{
				"取消", "不上", "請假", "请假", "修改", "改到", "改成", "調整", "调整",
				"查", "哪些", "不對", "不对", "不是", "錯", "错",
			},
		},
		{
			Intent:   IntentQuerySchedule,
			Priority: 2,
			Keywords: []string{
				"查詢", "查询", "查一下", "查看", "看看", "課表", "课表",
				"有什麼課", "有什么课", "哪些課", "哪些课", "安排了什麼", "安排了什么",
			},
		},
		{
			Intent:   IntentModifyCourse,
			Priority: 3,
			Keywords: []string{
				"修改", "更改", "改到", "改成", "調整", "调整", "換到", "换到",
				"改期", "延期", "提前", "推遲", "推迟", "挪到",
			},
			Exclusions: []string{"取消"},
		},
		{
			Intent:   IntentCancelCourse,
			Priority: 4,
			Keywords: []string{
				"取消", "不上了", "不上", "停課", "停课", "請假", "请假", "刪除", "删除",
			},
		},
		{
			Intent:   IntentCorrection,
			Priority: 5,
			Keywords: []string{
				"不對", "不对", "不是", "錯了", "错了", "說錯", "说错", "弄錯", "弄错",
				"搞錯", "搞错", "應該是", "应该是", "我是說", "我是说",
			},
		},
	}
}

// ruleFile is the YAML shape of an external rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a rule set from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	for i, rule := range file.Rules {
		if rule.Intent == "" {
			return nil, fmt.Errorf("rule %d: missing intent", i)
		}
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no keywords", i, rule.Intent)
		}
	}
	return file.Rules, nil
}

// RuleCatalog loads a rule set lazily once per process and keeps it
// immutable thereafter. Reload is an explicit administrative action, not
// part of the request path; concurrent reloads are deduplicated.
type RuleCatalog struct {
	path string

	once   sync.Once
	mu     sync.RWMutex
	rules  []Rule
	group  singleflight.Group
	loadFn func() ([]Rule, error)
}

// NewRuleCatalog builds a catalog backed by path; an empty path means the
// compiled-in defaults.
func NewRuleCatalog(path string) *RuleCatalog {
	c := &RuleCatalog{path: path}
	c.loadFn = c.load
	return c
}

func (c *RuleCatalog) load() ([]Rule, error) {
	if c.path == "" {
		return DefaultRules(), nil
	}
	return LoadRules(c.path)
}

// Rules returns the cached rule set, loading it on first use. A failed file
// load falls back to the defaults so classification never goes dark.
func (c *RuleCatalog) Rules() []Rule {
	c.once.Do(func() {
		rules, err := c.loadFn()
		if err != nil {
			rules = DefaultRules()
		}
		c.mu.Lock()
		c.rules = rules
		c.mu.Unlock()
	})
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Reload re-reads the rule file. Concurrent callers share one load.
func (c *RuleCatalog) Reload() error {
	_, err, _ := c.group.Do("reload", func() (any, error) {
		rules, err := c.loadFn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.rules = rules
		c.mu.Unlock()
		return nil, nil
	})
	return err
}
