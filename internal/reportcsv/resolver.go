// Package reportcsv parses report exports and resolves their columns.
// Header spellings drift between endpoints ("Media Source", "media_source",
// "MEDIA SOURCE (PID)"), so columns are matched on a normalized form and
// looked up by semantic field.
package reportcsv

import "strings"

// Field is a semantic column.
type Field string

const (
	FieldDate        Field = "date"
	FieldImpressions Field = "impressions"
	FieldClicks      Field = "clicks"
	FieldInstalls    Field = "installs"
	FieldMediaSource Field = "media_source"
	FieldInstallTime Field = "install_time"
	FieldEventTime   Field = "event_time"
	FieldClickTime   Field = "click_time"
	FieldEventName   Field = "event_name"
)

// fieldAliases lists accepted header spellings per field. Spellings are
// normalized before comparison, so only genuinely different names belong
// here.
var fieldAliases = map[Field][]string{
	FieldDate:        {"Date", "Day"},
	FieldImpressions: {"Impressions"},
	FieldClicks:      {"Clicks"},
	FieldInstalls:    {"Installs"},
	FieldMediaSource: {"Media Source", "pid"},
	FieldInstallTime: {"Install Time"},
	FieldEventTime:   {"Event Time"},
	FieldClickTime:   {"Click Time"},
	FieldEventName:   {"Event Name"},
}

// timeFields maps an endpoint's declared time header to its field.
var timeFields = map[string]Field{
	Normalize("Date"):         FieldDate,
	Normalize("Install Time"): FieldInstallTime,
	Normalize("Event Time"):   FieldEventTime,
	Normalize("Click Time"):   FieldClickTime,
}

var stripper = strings.NewReplacer(" ", "", "_", "", "(", "", ")", "", "\ufeff", "")

// Normalize lower-cases s and strips spaces, underscores and parentheses.
func Normalize(s string) string {
	return stripper.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Resolve returns the index of the first header cell matching any candidate
// after normalization, or -1.
func Resolve(header []string, candidates ...string) int {
	want := make([]string, 0, len(candidates))
	for _, c := range candidates {
		want = append(want, Normalize(c))
	}
	for i, cell := range header {
		n := Normalize(cell)
		for _, w := range want {
			if n == w {
				return i
			}
		}
	}
	return -1
}

// ResolveField resolves a semantic field. The media source column gets a
// second, looser pass accepting any header containing both "media" and
// "source".
func ResolveField(header []string, field Field) int {
	if idx := Resolve(header, fieldAliases[field]...); idx >= 0 {
		return idx
	}
	if field == FieldMediaSource {
		return ResolveMediaSource(header)
	}
	return -1
}

// ResolveMediaSource is the loose pass for the traffic-source column.
func ResolveMediaSource(header []string) int {
	if idx := Resolve(header, fieldAliases[FieldMediaSource]...); idx >= 0 {
		return idx
	}
	for i, cell := range header {
		n := Normalize(cell)
		if strings.Contains(n, "media") && strings.Contains(n, "source") {
			return i
		}
	}
	return -1
}

// ResolveTime resolves the column named by an endpoint's time field,
// falling back to that field's aliases.
func ResolveTime(header []string, timeField string) int {
	if idx := Resolve(header, timeField); idx >= 0 {
		return idx
	}
	if f, ok := timeFields[Normalize(timeField)]; ok {
		return ResolveField(header, f)
	}
	return -1
}

// Columns resolves several fields at once. Missing fields are reported in
// declaration order.
func Columns(header []string, fields ...Field) (map[Field]int, []Field) {
	idx := make(map[Field]int, len(fields))
	var missing []Field
	for _, f := range fields {
		i := ResolveField(header, f)
		if i < 0 {
			missing = append(missing, f)
			continue
		}
		idx[f] = i
	}
	return idx, missing
}
