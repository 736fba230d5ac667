package usecase

import (
	"strconv"
	"time"

	"github.com/totegamma/ojstore/internal/domain"
)

const acmPenaltyPerWrong = 20 * time.Minute

// JournalEntry is one judged submission appended to a contest status.
type JournalEntry struct {
	RID    domain.Identifier
	PID    int64
	Score  int64
	Status domain.RecordStatus
	Time   time.Time
}

func (e JournalEntry) fields() domain.Fields {
	return domain.Fields{
		domain.FieldRID:    e.RID,
		"pid":              e.PID,
		domain.FieldScore:  e.Score,
		domain.FieldStatus: int(e.Status),
		"time":             e.Time.UTC().Format(time.RFC3339Nano),
	}
}

func journalFromFields(raw []any) []JournalEntry {
	entries := make([]JournalEntry, 0, len(raw))
	for _, r := range raw {
		var f domain.Fields
		switch m := r.(type) {
		case map[string]any:
			f = m
		case domain.Fields:
			f = m
		default:
			continue
		}
		pid, ok := f.Int64("pid")
		if !ok {
			continue
		}
		score, _ := f.Int64(domain.FieldScore)
		status, _ := f.Int64(domain.FieldStatus)
		ts, _ := f.String("time")
		at, _ := time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, JournalEntry{
			RID:    f.Identifier(domain.FieldRID),
			PID:    pid,
			Score:  score,
			Status: domain.RecordStatus(status),
			Time:   at,
		})
	}
	return entries
}

// Scorer derives the aggregate fields of a contest status from its journal.
// It must be a pure function of its inputs.
type Scorer interface {
	Score(contest *domain.Document, journal []JournalEntry) domain.Fields
}

// RuleScorer picks the scoring rule stored on the contest. Unknown rules score as OI.
type RuleScorer struct{}

func (RuleScorer) Score(contest *domain.Document, journal []JournalEntry) domain.Fields {
	if rule, _ := contest.Fields.Int64(domain.FieldRule); rule == domain.RuleACM {
		beginAt, _ := contest.Fields.String(domain.FieldBeginAt)
		begin, _ := time.Parse(time.RFC3339Nano, beginAt)
		return scoreACM(begin, journal)
	}
	return scoreOI(journal)
}

// scoreOI keeps the latest record of every problem.
func scoreOI(journal []JournalEntry) domain.Fields {
	latest := map[int64]JournalEntry{}
	for _, e := range journal {
		latest[e.PID] = e
	}

	detail := map[string]any{}
	var score, accept int64
	for pid, e := range latest {
		detail[strconv.FormatInt(pid, 10)] = map[string]any{
			domain.FieldRID:    e.RID,
			domain.FieldScore:  e.Score,
			domain.FieldStatus: int(e.Status),
		}
		score += e.Score
		if e.Status == domain.RecordStatusAccepted {
			accept++
		}
	}
	return domain.Fields{
		domain.FieldDetail: detail,
		domain.FieldScore:  score,
		domain.FieldAccept: accept,
	}
}

// scoreACM counts the first accepted record of every problem, charging
// elapsed time plus a fixed penalty per earlier rejected record.
func scoreACM(begin time.Time, journal []JournalEntry) domain.Fields {
	type state struct {
		rid      domain.Identifier
		wrong    int64
		accepted bool
		at       time.Time
	}
	problems := map[int64]*state{}
	for _, e := range journal {
		s, ok := problems[e.PID]
		if !ok {
			s = &state{}
			problems[e.PID] = s
		}
		if s.accepted || e.Status == domain.RecordStatusCompileError {
			continue
		}
		s.rid = e.RID
		if e.Status == domain.RecordStatusAccepted {
			s.accepted = true
			s.at = e.Time
		} else {
			s.wrong++
		}
	}

	detail := map[string]any{}
	var accept int64
	var penalty time.Duration
	for pid, s := range problems {
		entry := map[string]any{
			domain.FieldRID: s.rid,
			"wrong":         s.wrong,
			"accepted":      s.accepted,
		}
		if s.accepted {
			accept++
			elapsed := max(s.at.Sub(begin), 0)
			penalty += elapsed + time.Duration(s.wrong)*acmPenaltyPerWrong
			entry["time"] = int64(elapsed / time.Second)
		}
		detail[strconv.FormatInt(pid, 10)] = entry
	}
	return domain.Fields{
		domain.FieldDetail:  detail,
		domain.FieldScore:   accept,
		domain.FieldAccept:  accept,
		domain.FieldPenalty: int64(penalty / time.Second),
	}
}
