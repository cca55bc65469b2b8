package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html/template"
	"strings"
	"time"
)

func hfTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// hfHTML marks stored comment content, which was sanitized on the way in
// and again on the way out, as safe to emit.
func hfHTML(s string) template.HTML {
	return template.HTML(s)
}

func hfGravatar(name string) string {
	if name == "" {
		return "http://www.gravatar.com/avatar/00000000000000000000000000000000?d=retro"
	}
	hash := md5.Sum([]byte(strings.ToLower(name)))
	return "http://www.gravatar.com/avatar/" + hex.EncodeToString(hash[:]) + "?d=retro"
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// agoString describes t relative to now, falling back to the date for
// anything older than a month.
func agoString(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return t.Format("January 2, 2006")
	}
	switch {
	case d < time.Minute:
		return plural(int(d/time.Second), "second") + " ago"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	case d < 31*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	}
	if t.Year() == now.Year() {
		return t.Format("January 2")
	}
	return t.Format("January 2, 2006")
}
