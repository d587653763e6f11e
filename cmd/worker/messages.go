package main

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"eventmitra/backend/internal/models"
)

type emailData struct {
	Name         string
	EventTitle   string
	EventTime    string
	Venue        string
	OrderNumber  string
	Total        string
	RefundAmount string
	EventURL     string
	Tickets      []ticketLine
}

type ticketLine struct {
	TypeName string
	Attendee string
	URL      string
}

var bookingTemplate = template.Must(template.New("booking").Parse(`<p>Hi {{.Name}},</p>
<p>Your booking for <strong>{{.EventTitle}}</strong> is confirmed.</p>
<p>{{.EventTime}}<br>{{.Venue}}</p>
<p>Order {{.OrderNumber}} &middot; paid {{.Total}}</p>
<ul>{{range .Tickets}}<li>{{.TypeName}} for {{.Attendee}}{{if .URL}} (<a href="{{.URL}}">view</a>){{end}}</li>{{end}}</ul>
<p>Your QR codes are attached. Show one per person at the entrance.</p>
{{if .EventURL}}<p><a href="{{.EventURL}}">Event details</a></p>{{end}}`))

var reminderTemplate = template.Must(template.New("reminder").Parse(`<p>Hi {{.Name}},</p>
<p><strong>{{.EventTitle}}</strong> starts {{.EventTime}}.</p>
<p>{{.Venue}}</p>
<ul>{{range .Tickets}}<li>{{.TypeName}} for {{.Attendee}}</li>{{end}}</ul>
<p>Your QR codes are attached again for convenience.</p>
{{if .EventURL}}<p><a href="{{.EventURL}}">Event details</a></p>{{end}}`))

var refundTemplate = template.Must(template.New("refund").Parse(`<p>Hi {{.Name}},</p>
<p>We have refunded {{.RefundAmount}} for order {{.OrderNumber}} ({{.EventTitle}}).</p>
<p>Refunds usually reach your account within 5 to 7 working days.</p>`))

func renderEmail(tpl *template.Template, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

func (w *worker) emailData(user models.User, event models.Event, detail models.OrderDetail, tickets []models.Ticket) emailData {
	name := strings.TrimSpace(detail.Order.Contact.Name)
	if name == "" {
		name = user.Name
	}
	data := emailData{
		Name:        name,
		EventTitle:  event.Title,
		EventTime:   formatEventTime(event.StartsAt),
		Venue:       venueLabel(event.Venue),
		OrderNumber: detail.Order.OrderNumber,
		Total:       formatAmount(detail.Order.Pricing.Total, detail.Order.Currency),
		EventURL:    buildAppURL(w.baseURL, "events", strconv.FormatInt(event.ID, 10)),
	}
	for _, t := range tickets {
		attendee := t.Attendee.Name
		if attendee == "" {
			attendee = name
		}
		data.Tickets = append(data.Tickets, ticketLine{
			TypeName: t.TicketTypeName,
			Attendee: attendee,
			URL:      buildAppURL(w.baseURL, "tickets", t.ID),
		})
	}
	return data
}

var displayZone = loadDisplayZone()

func loadDisplayZone() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

func formatEventTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(displayZone).Format("Mon, 02 Jan 2006 15:04 MST")
}

func formatAmount(amount int64, currency string) string {
	switch strings.ToUpper(currency) {
	case "", "INR":
		return "₹" + strconv.FormatInt(amount, 10)
	default:
		return strings.ToUpper(currency) + " " + strconv.FormatInt(amount, 10)
	}
}

func venueLabel(v models.Venue) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{v.Name, v.Address, v.City} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// buildAppURL joins segments onto the web app base URL. It returns an
// empty string when no usable base is configured.
func buildAppURL(baseURL string, segments ...string) string {
	if strings.TrimSpace(baseURL) == "" {
		return ""
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Path = path.Join(append([]string{"/", parsed.Path}, segments...)...)
	return parsed.String()
}
