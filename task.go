package main

import (
	"fmt"
	"strings"
	"time"
)

const (
	taskEventDuration = time.Hour
	taskReminderLead  = 15
)

// Task is a task from the task manager. taskcal only reads it.
type Task struct {
	ID       string
	Title    string
	Emoji    string
	Category string
	Priority string
	// Time is the time of day in "H:MM AM/PM" form, or empty.
	Time string
}

// calendarEvent builds the event mirroring t, starting at start.
func (t Task) calendarEvent(start time.Time) Event {
	return Event{
		Title:       strings.TrimSpace(fmt.Sprintf("%s %s", t.Emoji, t.Title)),
		Description: fmt.Sprintf("TaskFlow Task - Category: %s\nPriority: %s", t.Category, t.Priority),
		StartTime:   start,
		EndTime:     start.Add(taskEventDuration),
		Reminder:    &Reminder{Minutes: taskReminderLead},
		TaskID:      t.ID,
	}
}

// startTime resolves when the task's event begins relative to now.
func (t Task) startTime(now time.Time) (time.Time, error) {
	if t.Time == "" {
		return now, nil
	}
	return ParseTimeOfDay(t.Time, now)
}
