package metrics

import (
	"fmt"

	"donorpulse/internal/core"
)

// Grouping selects the breakdown key for a metric. GroupNone yields a single
// ungrouped total; any other value yields one result per group.
type Grouping string

const (
	GroupNone           Grouping = ""
	GroupChapter        Grouping = "chapter"
	GroupChapterType    Grouping = "chapter_type"
	GroupChapterAndType Grouping = "chapter_and_type"
	GroupMonth          Grouping = "month"
	GroupPlatform       Grouping = "platform"
)

// ParseGrouping validates a grouping name from an external caller.
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case GroupNone, GroupChapter, GroupChapterType, GroupChapterAndType, GroupMonth, GroupPlatform:
		return g, nil
	}
	return GroupNone, fmt.Errorf("unknown grouping %q", s)
}

const (
	keyUnresolved = "(unresolved)"
	keyNone       = "(none)"
	monthKey      = "2006-01"
)

func orNone(s string) string {
	if s == "" {
		return keyNone
	}
	return s
}

func paymentGroupKey(p core.JoinedPayment, g Grouping) string {
	switch g {
	case GroupMonth:
		return p.Date.Format(monthKey)
	case GroupPlatform:
		return orNone(p.Platform)
	case GroupChapter:
		if !p.PledgeResolved {
			return keyUnresolved
		}
		return orNone(p.Chapter)
	case GroupChapterType:
		if !p.PledgeResolved {
			return keyUnresolved
		}
		return orNone(p.ChapterType)
	case GroupChapterAndType:
		if !p.PledgeResolved {
			return keyUnresolved
		}
		return orNone(p.Chapter) + " / " + orNone(p.ChapterType)
	}
	return ""
}

func pledgeGroupKey(p core.Pledge, g Grouping) string {
	switch g {
	case GroupPlatform:
		return orNone(p.Platform)
	case GroupChapter:
		return orNone(p.Chapter)
	case GroupChapterType:
		return orNone(p.ChapterType)
	case GroupChapterAndType:
		return orNone(p.Chapter) + " / " + orNone(p.ChapterType)
	}
	return ""
}
