// Package report implements the device error-report pipeline: it
// reformats submitted form fields into a JSON document and ships the
// document to a notification sink. The pipeline is independent of the
// release-metadata core.
package report

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Entry is one reported error. Devices submit indexed form fields
// (errors[0][type], errors[0][log_message], ...); missing fields take
// the zero-ish defaults the fleet protocol has always used.
type Entry struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	File      string `json:"file"`
	Line      string `json:"line"`
	Date      string `json:"date"`
	HumanDate string `json:"human_date"`
}

// Report is a full decoded error report from one device.
type Report struct {
	Errors     []Entry `json:"errors"`
	Version    string  `json:"version"`
	Revision   string  `json:"revision"`
	ReceivedAt string  `json:"received_at"`
}

// Parse decodes a submitted form into a Report. Entries are read from
// errors[0]..errors[n] until the first index without a type field.
func Parse(form url.Values, now time.Time) *Report {
	r := &Report{
		Errors:     []Entry{},
		Version:    form.Get("version"),
		Revision:   form.Get("revision"),
		ReceivedAt: now.UTC().Format(time.RFC3339),
	}

	for i := 0; ; i++ {
		prefix := fmt.Sprintf("errors[%d]", i)
		if !form.Has(prefix + "[type]") {
			break
		}
		entry := Entry{
			Type:    getOr(form, prefix+"[type]", "unknown"),
			Message: form.Get(prefix + "[log_message]"),
			File:    form.Get(prefix + "[log_extra]"),
			Line:    getOr(form, prefix+"[line]", "0"),
			Date:    getOr(form, prefix+"[date]", "0"),
		}
		entry.HumanDate = humanDate(entry.Date)
		r.Errors = append(r.Errors, entry)
	}

	return r
}

func getOr(form url.Values, key, fallback string) string {
	if v := form.Get(key); v != "" {
		return v
	}
	return fallback
}

func humanDate(unix string) string {
	n, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return "invalid_timestamp"
	}
	return time.Unix(n, 0).UTC().Format("2006-01-02 15:04:05")
}

// Document renders the report as an indented JSON document, the form
// shipped to the notification sink.
func (r *Report) Document() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Filename returns the timestamped document name for a report received
// at the given time.
func Filename(now time.Time) string {
	return "errors_" + now.UTC().Format("20060102_150405") + ".json"
}
