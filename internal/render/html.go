package render

import (
	"fmt"
	"html/template"
	"io"
	"regexp"
)

// safeColor accepts hex colors and plain color names.
var safeColor = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]+)$`)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"textColor":   func(c string) template.CSS { return colorStyle("color", c) },
	"bgColor":     func(c string) template.CSS { return colorStyle("background-color", c) },
	"stateText":   stateText,
	"itemClasses": itemClasses,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>mirrorcal</title>
</head>
<body>
<div id="calendar" data-ready="true" data-state="{{.State}}">
{{- if eq .State "grid"}}
<table class="{{.TableClass}}">
<tr>
{{- range .Headers}}
<th{{if .RedDay}} class="redDay"{{end}}><span>{{.Weekday}}{{if .FlagDay}} 🇸🇪{{end}}</span><span class="dayNumber">{{.DayNumber}}</span></th>
{{- end}}
</tr>
<tr>
{{- range .Days}}
<td>
{{- range .}}
{{- if .FullDay}}
<p class="{{itemClasses "fullDayEvent" .}}" style="{{bgColor .Color}}">{{range $i, $l := .TitleLines}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
{{- else}}
<p class="{{itemClasses "" .}}" style="{{textColor .Color}}">{{range $i, $l := .TitleLines}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
{{- end}}
{{- end}}
</td>
{{- end}}
</tr>
</table>
{{- else}}
<table class="{{.TableClass}} dimmed"><tr><td>{{stateText .}}</td></tr></table>
{{- end}}
</div>
</body>
</html>
`))

// WriteHTML renders w as a standalone HTML page. The #calendar element
// carries data-ready="true" for the snapshot capture.
func (w Week) WriteHTML(out io.Writer) error {
	if err := pageTemplate.Execute(out, w); err != nil {
		return fmt.Errorf("render: html: %w", err)
	}
	return nil
}

func colorStyle(prop, c string) template.CSS {
	if !safeColor.MatchString(c) {
		return ""
	}
	return template.CSS(prop + ": " + c)
}

func itemClasses(base string, it Item) string {
	out := base
	for _, c := range []string{it.EventClass, it.TitleClass} {
		if c == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += c
	}
	return out
}

func stateText(w Week) string {
	switch w.State {
	case StateLoading:
		return "Loading …"
	case StateError:
		if len(w.Errors) > 0 {
			return "Calendar error: " + w.Errors[0].Kind
		}
		return "Calendar error"
	default:
		return "No upcoming events."
	}
}
