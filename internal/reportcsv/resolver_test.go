package reportcsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "mediasource", Normalize("Media Source"))
	assert.Equal(t, "mediasource", Normalize(" MEDIA_SOURCE "))
	assert.Equal(t, "mediasourcepid", Normalize("Media Source (pid)"))
	assert.Equal(t, "date", Normalize("\ufeffDate"))
}

func TestResolve_MixedCaseHeader(t *testing.T) {
	header := []string{"Date", "impressions", "CLICKS", "Installs", "Media_Source"}

	cols, missing := Columns(header, FieldDate, FieldImpressions, FieldClicks, FieldInstalls, FieldMediaSource)
	assert.Empty(t, missing)
	assert.Equal(t, 0, cols[FieldDate])
	assert.Equal(t, 1, cols[FieldImpressions])
	assert.Equal(t, 2, cols[FieldClicks])
	assert.Equal(t, 3, cols[FieldInstalls])
	assert.Equal(t, 4, cols[FieldMediaSource])
}

func TestResolve_FirstMatchWins(t *testing.T) {
	assert.Equal(t, 1, Resolve([]string{"x", "Event Name", "event_name"}, "Event Name"))
	assert.Equal(t, -1, Resolve([]string{"x", "y"}, "Event Name"))
	assert.Equal(t, -1, Resolve(nil, "Date"))
}

func TestResolveMediaSource_LoosePass(t *testing.T) {
	assert.Equal(t, 2, ResolveField([]string{"Install Time", "Country", "Media Source (PID)"}, FieldMediaSource))
	assert.Equal(t, 0, ResolveField([]string{"Source of Media"}, FieldMediaSource))
	assert.Equal(t, -1, ResolveField([]string{"Partner", "Source"}, FieldMediaSource))
}

func TestResolve_LoosePassOnlyForMediaSource(t *testing.T) {
	assert.Equal(t, -1, ResolveField([]string{"Event Time (UTC)"}, FieldEventTime))
}

func TestResolveTime(t *testing.T) {
	assert.Equal(t, 1, ResolveTime([]string{"Media Source", "install_time"}, "Install Time"))
	assert.Equal(t, 0, ResolveTime([]string{"DATE"}, "Date"))
	assert.Equal(t, -1, ResolveTime([]string{"Media Source"}, "Click Time"))
}

func TestColumns_ReportsMissing(t *testing.T) {
	_, missing := Columns([]string{"Date", "Clicks"}, FieldDate, FieldImpressions, FieldClicks, FieldMediaSource)
	assert.Equal(t, []Field{FieldImpressions, FieldMediaSource}, missing)
}
