package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"pocketsage/internal/domain"
)

// actionableThreshold mirrors domain.Intent.Actionable.
const actionableThreshold = 0.5

// extractor turns a regex match into entity slots. The match slice is
// the full submatch result; now anchors relative time expressions.
type extractor func(text string, m []string, now time.Time) domain.Entities

// entry is one row of the intent table: a type, its trigger patterns,
// and the extraction function shared by those patterns.
type entry struct {
	typ      domain.IntentType
	patterns []*regexp.Regexp
	extract  extractor
}

// Classifier is a pattern-table intent parser. The table is scanned in
// a fixed priority order; the first matching pattern wins for Parse.
type Classifier struct {
	table []entry
	now   func() time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithNow injects a time source for resolving relative datetimes.
func WithNow(now func() time.Time) ClassifierOption {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier builds a classifier over the built-in intent table.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		table: intentTable,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse returns the single best intent for the input: the first
// matching pattern in table order. No match yields an unknown intent
// with zero confidence carrying the raw text as a query.
func (c *Classifier) Parse(text string) domain.Intent {
	trimmed := strings.TrimSpace(text)
	now := c.now()

	for _, e := range c.table {
		for _, re := range e.patterns {
			m := re.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			return c.build(e, trimmed, m, now)
		}
	}

	return unknownIntent(trimmed)
}

// ParseAll returns every matching intent across the table, at most one
// per table entry, ranked by confidence descending.
func (c *Classifier) ParseAll(text string) []domain.Intent {
	trimmed := strings.TrimSpace(text)
	now := c.now()

	var intents []domain.Intent
	for _, e := range c.table {
		for _, re := range e.patterns {
			m := re.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			intents = append(intents, c.build(e, trimmed, m, now))
			break
		}
	}

	sort.SliceStable(intents, func(i, j int) bool {
		return intents[i].Confidence > intents[j].Confidence
	})
	return intents
}

// IsActionable reports whether the input parses to a known intent with
// confidence above the dispatch threshold.
func (c *Classifier) IsActionable(text string) bool {
	intent := c.Parse(text)
	return intent.Type != domain.IntentUnknown && intent.Confidence > actionableThreshold
}

func (c *Classifier) build(e entry, text string, m []string, now time.Time) domain.Intent {
	entities := e.extract(text, m, now)
	return domain.Intent{
		Type:       e.typ,
		Confidence: confidence(text, m),
		Raw:        text,
		Entities:   entities,
	}
}

// confidence scores a match by how much of the input the pattern
// covered plus a bonus per captured entity, floored by a base bonus.
func confidence(text string, m []string) float64 {
	if len(text) == 0 {
		return 0
	}
	coverage := float64(len(m[0])) / float64(len(text))
	bonus := 0.0
	for _, g := range m[1:] {
		if strings.TrimSpace(g) != "" {
			bonus += 0.1
		}
	}
	score := coverage*0.8 + bonus + 0.1
	if score > 1 {
		return 1
	}
	return score
}

func unknownIntent(text string) domain.Intent {
	return domain.Intent{
		Type:       domain.IntentUnknown,
		Confidence: 0,
		Raw:        text,
		Entities:   domain.Entities{Query: text},
	}
}

// intentTable is the ordered pattern table. Order is significant:
// earlier entries win ties, so specific commands precede catch-alls.
var intentTable = []entry{
	{
		typ: domain.IntentReminder,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^remind me (?:to|about) (.+)$`),
			regexp.MustCompile(`(?i)^set (?:a )?reminder (?:to|for|about) (.+)$`),
			regexp.MustCompile(`(?i)^don'?t let me forget (?:to )?(.+)$`),
		},
		extract: func(text string, m []string, now time.Time) domain.Entities {
			e := domain.Entities{Subject: StripTimePhrases(m[1])}
			if t, ok := ResolveTime(text, now); ok {
				e.Datetime = &t
			}
			return e
		},
	},
	{
		typ: domain.IntentMessage,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:send (?:a )?)?(?:message|text) (?:to )?(\w+)(?:[:,]? (?:saying |that )?(.+))?$`),
			regexp.MustCompile(`(?i)^tell (\w+) (?:that )?(.+)$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			e := domain.Entities{Contact: m[1]}
			if len(m) > 2 {
				e.Body = strings.TrimSpace(m[2])
			}
			return e
		},
	},
	{
		typ: domain.IntentNote,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:take|make|save) a note[:,]? ?(.*)$`),
			regexp.MustCompile(`(?i)^note (?:down )?(?:that )?(.+)$`),
			regexp.MustCompile(`(?i)^write (?:this |that )?down[:,]? ?(.*)$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			return domain.Entities{Body: strings.TrimSpace(m[1])}
		},
	},
	{
		typ: domain.IntentCalendarEvent,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:schedule|add|create|book) (?:a |an )?(?:meeting|appointment|event|call)(?: (?:called|titled|about|with|for) (.+?))?(?: (?:on|at|for) .+)?$`),
			regexp.MustCompile(`(?i)^put (.+?) (?:on|in) (?:my |the )?calendar\b.*$`),
		},
		extract: func(text string, m []string, now time.Time) domain.Entities {
			e := domain.Entities{Subject: StripTimePhrases(m[1])}
			if t, ok := ResolveTime(text, now); ok {
				e.Datetime = &t
			}
			return e
		},
	},
	{
		typ: domain.IntentTimer,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:set|start) (?:a )?timer for (\d+) (second|sec|minute|min|hour|hr)s?$`),
			regexp.MustCompile(`(?i)^timer[:,]? (\d+) (second|sec|minute|min|hour|hr)s?$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return domain.Entities{}
			}
			var unit time.Duration
			switch strings.ToLower(m[2]) {
			case "second", "sec":
				unit = time.Second
			case "minute", "min":
				unit = time.Minute
			case "hour", "hr":
				unit = time.Hour
			}
			return domain.Entities{Duration: time.Duration(n) * unit}
		},
	},
	{
		typ: domain.IntentAppLaunch,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:open|launch) (?:the )?(.+?)(?: app)?$`),
			regexp.MustCompile(`(?i)^start (?:the )?(.+?) app$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			return domain.Entities{AppName: strings.TrimSpace(m[1])}
		},
	},
	{
		typ: domain.IntentCall,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:call|dial|phone|ring) (.+)$`),
			regexp.MustCompile(`(?i)^make a (?:phone )?call to (.+)$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			return domain.Entities{Contact: strings.TrimSpace(m[1])}
		},
	},
	{
		typ: domain.IntentNavigation,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:navigate to|directions to|take me to|route to) (.+)$`),
			regexp.MustCompile(`(?i)^how do i get to (.+?)\??$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			return domain.Entities{Location: strings.TrimSpace(m[1])}
		},
	},
	{
		typ: domain.IntentSearch,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:search (?:the web )?for|look up|google) (.+)$`),
			regexp.MustCompile(`(?i)^(?:what|who|when|where|why|how) (?:is|are|was|were|do|does|did) (.+?)\??$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			return domain.Entities{Query: strings.TrimSpace(m[1])}
		},
	},
	{
		typ: domain.IntentDeviceSkill,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:show (?:a )?toast|toast)(?: (.+))?$`),
			regexp.MustCompile(`(?i)^vibrate(?: (?:the )?(?:phone|device))?(?: for (\d+) ?(?:ms|milliseconds?))?$`),
			regexp.MustCompile(`(?i)^(?:battery (?:status|level)|how much battery(?: is left)?\??)$`),
		},
		extract: extractDeviceSkill,
	},
	{
		typ: domain.IntentSetting,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^turn (on|off) (?:the )?(.+)$`),
			regexp.MustCompile(`(?i)^(enable|disable) (?:the )?(.+)$`),
		},
		extract: func(_ string, m []string, _ time.Time) domain.Entities {
			verb := strings.ToLower(m[1])
			return domain.Entities{
				Setting: strings.TrimSpace(m[2]),
				Enable:  verb == "on" || verb == "enable",
			}
		},
	},
}

// extractDeviceSkill maps micro-commands to the device tool they invoke.
func extractDeviceSkill(text string, m []string, _ time.Time) domain.Entities {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "toast"):
		e := domain.Entities{SkillID: "show_toast"}
		if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			e.SkillArgs = map[string]any{"message": strings.TrimSpace(m[1])}
		}
		return e
	case strings.Contains(lower, "vibrate"):
		e := domain.Entities{SkillID: "vibrate_device"}
		if len(m) > 1 && m[1] != "" {
			if ms, err := strconv.Atoi(m[1]); err == nil {
				e.SkillArgs = map[string]any{"duration_ms": ms}
			}
		}
		return e
	case strings.Contains(lower, "battery"):
		return domain.Entities{SkillID: "get_battery_status"}
	}
	return domain.Entities{}
}
