package push

import "time"

// Fixed notification attributes.
const (
	Tag             = "print-job-notification"
	DefaultIcon     = "/static/assets/nitzInc.png"
	DefaultBadge    = "/static/assets/nitzInc.png"
	DefaultURL      = "/admin"
	FallbackTitle   = "Print Store"
	FallbackBody    = "You have a new notification"
	ActivationRoute = "/admin"
)

// Data is the opaque bundle carried by a notification.
type Data struct {
	URL   string `json:"url"`
	JobID string `json:"job_id,omitempty"`
}

// Notification is what the tray displays.
type Notification struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Icon     string    `json:"icon"`
	Badge    string    `json:"badge"`
	Tag      string    `json:"tag"`
	Renotify bool      `json:"renotify"`
	Silent   bool      `json:"silent"`
	Data     Data      `json:"data"`
	Tier     string    `json:"tier"`
	ShownAt  time.Time `json:"shown_at"`
}

// Materialize builds the notification for a decoded payload. Title and body
// are always non-empty.
func Materialize(d Decoded, id string, now time.Time) Notification {
	p := d.Payload
	if d.Tier == TierDefault {
		p = Payload{Title: FallbackTitle, Body: d.Text}
	}
	return Notification{
		ID:       id,
		Title:    orDefault(p.Title, FallbackTitle),
		Body:     orDefault(p.Body, FallbackBody),
		Icon:     orDefault(p.Icon, DefaultIcon),
		Badge:    DefaultBadge,
		Tag:      Tag,
		Renotify: true,
		Silent:   false,
		Data: Data{
			URL:   orDefault(p.URL, DefaultURL),
			JobID: p.JobID,
		},
		Tier:    d.Tier.String(),
		ShownAt: now.UTC(),
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
