// Package display renders CLI output as aligned tables or JSON.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/topicmgr"
)

// EventDisplay represents a registered event for display purposes.
type EventDisplay struct {
	Name        string         `json:"name"`
	Direction   string         `json:"direction"`
	Description string         `json:"description"`
	Example     string         `json:"example"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventsTable writes events as a table.
func EventsTable(w io.Writer, events []topicmgr.Topic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tDIRECTION\tDESCRIPTION\tEXAMPLE")
	fmt.Fprintln(tw, "----\t---------\t-----------\t-------")
	if len(events) == 0 {
		fmt.Fprintln(tw, "No events found")
		return
	}
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.Name(),
			ev.Direction(),
			Truncate(ev.Description(), 48),
			Truncate(ev.Example(), 40))
	}
}

// EventsJSON writes events as an indented JSON document with a count.
func EventsJSON(w io.Writer, events []topicmgr.Topic) error {
	out := struct {
		Events []EventDisplay `json:"events"`
		Count  int            `json:"count"`
	}{Events: make([]EventDisplay, 0, len(events))}

	for _, ev := range events {
		out.Events = append(out.Events, EventDisplay{
			Name:        ev.Name(),
			Direction:   string(ev.Direction()),
			Description: ev.Description(),
			Example:     ev.Example(),
			Metadata:    ev.Metadata(),
		})
	}
	out.Count = len(out.Events)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ChatsTable writes one row per chat, as seen by viewerID.
func ChatsTable(w io.Writer, viewerID string, chats []domain.ChatSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tWITH\tUNREAD\tLAST ACTIVITY\tLAST MESSAGE")
	for _, c := range chats {
		last := "-"
		if c.LastMessage != nil {
			last = Truncate(c.LastMessage.Content, 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			c.ID,
			Others(c, viewerID),
			c.UnreadCount,
			c.LastActivity.Local().Format(time.DateTime),
			last)
	}
}

// Messages writes a conversation transcript, oldest first.
func Messages(w io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.DateTime), m.SenderID, m.Content)
	}
}

// Others lists the display names of every participant except viewerID.
func Others(c domain.ChatSummary, viewerID string) string {
	var names []string
	for _, p := range c.Participants {
		if p.ID != viewerID {
			names = append(names, p.DisplayName())
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
