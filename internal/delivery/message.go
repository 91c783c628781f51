package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	"github.com/smallbiznis/songgift/internal/providers/email"
	"github.com/smallbiznis/songgift/internal/providers/whatsapp"
)

var emailHTML = template.Must(template.New("song").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Sender}},</p>
<p>Your personalised song for <strong>{{.Recipient}}</strong> is ready.</p>
<ul>{{range $i, $t := .Tracks}}<li><a href="{{$t}}">Version {{inc $i}}</a></li>{{end}}</ul>
<p>Thank you for letting us be part of the moment.</p>
</body></html>`))

type emailView struct {
	Sender    string
	Recipient string
	Tracks    []string
}

func songEmail(order *orderdomain.Order) (email.Message, error) {
	view := emailView{
		Sender:    senderName(order.Input),
		Recipient: order.Input.RecipientName,
		Tracks:    tracksOf(order),
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nYour personalised song for %s is ready.\n\n", view.Sender, view.Recipient)
	for i, track := range view.Tracks {
		fmt.Fprintf(&text, "Version %d: %s\n", i+1, track)
	}
	text.WriteString("\nThank you for letting us be part of the moment.\n")

	var html bytes.Buffer
	if err := emailHTML.Execute(&html, view); err != nil {
		return email.Message{}, fmt.Errorf("render email: %w", err)
	}

	return email.Message{
		To:      order.Input.Contact.Email,
		Subject: fmt.Sprintf("Your song for %s is ready", view.Recipient),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func songReminder(order *orderdomain.Order) whatsapp.Message {
	tracks := tracksOf(order)
	return whatsapp.Message{
		To: order.Input.Contact.WhatsApp,
		Body: fmt.Sprintf("Hi %s! Your personalised song for %s is ready. Listen here: %s (we also sent it to your email).",
			senderName(order.Input), order.Input.RecipientName, tracks[0]),
		MediaURL: tracks[0],
	}
}

func tracksOf(order *orderdomain.Order) []string {
	tracks := order.TrackMetadata.AllTracks()
	if order.TrackURL != nil {
		tracks = orderdomain.MergeTracks([]string{*order.TrackURL}, tracks)
	}
	return tracks
}

func senderName(in orderdomain.Input) string {
	if name := strings.TrimSpace(in.Contact.Name); name != "" {
		return name
	}
	return "there"
}
