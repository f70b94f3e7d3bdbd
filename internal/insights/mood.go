package insights

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mrwolf/journal-server/internal/db"
)

// How many emotions a day keeps in its aggregate.
const topEmotionCount = 3

// DayStat is a per-day mood aggregate across an actor's entries.
type DayStat struct {
	Day         string // 2006-01-02
	EntryCount  int
	AvgFeeling  *float64
	TopEmotions []string
}

// BuildMoodStats aggregates an actor's entries between from and to
// (inclusive) into per-day stats, oldest day first. Days without
// entries are absent rather than zero-filled.
func BuildMoodStats(database *db.DB, actor string, from, to time.Time) ([]DayStat, error) {
	entries, err := database.ListEntries(actor, db.EntryFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	tagsByEntry, err := database.GetTagsForEntries(ids)
	if err != nil {
		return nil, err
	}

	type dayAgg struct {
		count        int
		feelingSum   float64
		feelingCount int
		emotions     map[string]int
	}
	days := make(map[string]*dayAgg)

	for _, e := range entries {
		day := e.CreatedAt.Format("2006-01-02")
		agg, ok := days[day]
		if !ok {
			agg = &dayAgg{emotions: make(map[string]int)}
			days[day] = agg
		}

		agg.count++
		if e.Feeling != nil {
			agg.feelingSum += *e.Feeling
			agg.feelingCount++
		}
		for _, t := range tagsByEntry[e.EntryID] {
			if t.Kind == db.TagEmotion {
				agg.emotions[t.Tag]++
			}
		}
	}

	var dates []string
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var stats []DayStat
	for _, d := range dates {
		agg := days[d]
		stat := DayStat{
			Day:         d,
			EntryCount:  agg.count,
			TopEmotions: topEmotions(agg.emotions),
		}
		if agg.feelingCount > 0 {
			avg := agg.feelingSum / float64(agg.feelingCount)
			stat.AvgFeeling = &avg
		}
		stats = append(stats, stat)
	}

	return stats, nil
}

// MaterializeMoodStats recomputes and stores the actor's per-day
// aggregates for the window, so reads stay cheap.
func MaterializeMoodStats(database *db.DB, actor string, from, to time.Time) (int, error) {
	stats, err := BuildMoodStats(database, actor, from, to)
	if err != nil {
		return 0, err
	}

	for _, s := range stats {
		emotionsJSON, err := json.Marshal(s.TopEmotions)
		if err != nil {
			return 0, err
		}
		err = database.UpsertMoodStat(db.MoodStatRecord{
			Actor:       actor,
			Day:         s.Day,
			EntryCount:  s.EntryCount,
			AvgFeeling:  s.AvgFeeling,
			TopEmotions: string(emotionsJSON),
		})
		if err != nil {
			return 0, err
		}
	}

	return len(stats), nil
}

// topEmotions returns up to topEmotionCount emotions, most frequent
// first, ties broken alphabetically.
func topEmotions(counts map[string]int) []string {
	emotions := []string{}
	for e := range counts {
		emotions = append(emotions, e)
	}
	sort.Slice(emotions, func(i, j int) bool {
		if counts[emotions[i]] != counts[emotions[j]] {
			return counts[emotions[i]] > counts[emotions[j]]
		}
		return emotions[i] < emotions[j]
	})

	if len(emotions) > topEmotionCount {
		emotions = emotions[:topEmotionCount]
	}
	return emotions
}
