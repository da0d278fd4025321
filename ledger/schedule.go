/*
schedule.go - Payment schedule generation for loan releases

PURPOSE:
  Derives the weekly amortization schedule of a loan release from its
  release date and term length. Pure function; the engine persists the
  result alongside the release inside the same transaction.
*/
package ledger

import "time"

// GenerateSchedule returns one ScheduleEntry per week of the term,
// weeks 1..n, each due exactly 7 days after the previous, starting
// 7 days after the release date. All entries start unpaid.
//
// n = 0 yields an empty schedule; callers reject zero terms upstream,
// the generator itself enforces no minimum.
func GenerateSchedule(start time.Time, weeks int) []ScheduleEntry {
	if weeks <= 0 {
		return nil
	}
	schedule := make([]ScheduleEntry, 0, weeks)
	for week := 1; week <= weeks; week++ {
		schedule = append(schedule, ScheduleEntry{
			Week:    week,
			DueDate: start.AddDate(0, 0, 7*week),
			Paid:    false,
		})
	}
	return schedule
}
