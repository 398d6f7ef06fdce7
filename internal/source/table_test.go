package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

const tablePage = `<html><body>
<table class="shutdowns-table">
<thead><tr><th>Група</th><th>00:00-00:30</th><th>00:30-01:00</th><th>01:00-01:30</th></tr></thead>
<tbody>
<tr><td>Група 1</td><td style="background: red"></td><td class="cell-green"></td><td bgcolor="#ff0000"></td></tr>
<tr><td>2</td><td>можливо</td><td>відключення</td><td></td></tr>
<tr><td>Черга 99</td><td></td><td></td><td></td></tr>
<tr><td>Примітка</td><td colspan="3">текст</td></tr>
</tbody>
</table>
</body></html>`

func tableLocation(url string) registry.LocationConfig {
	return registry.LocationConfig{
		ID:          "chernivtsi",
		Name:        "Чернівці",
		ScheduleURL: url,
		Strategy:    registry.StrategyTable,
		Groups:      18,
	}
}

func TestTableAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tablePage))
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	ext, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.NoError(t, err)
	require.NotNil(t, ext)
	require.False(t, ext.Empty)

	// Group 99 is out of range, the note row has no digits: both skipped.
	require.Len(t, ext.Groups, 2)

	g1 := ext.Groups["1"]
	require.Len(t, g1, 3)
	assert.Equal(t, Slot{Label: "00:00-00:30", Status: models.StatusOff}, g1[0])
	assert.Equal(t, Slot{Label: "00:30-01:00", Status: models.StatusOn}, g1[1])
	assert.Equal(t, Slot{Label: "01:00-01:30", Status: models.StatusOff}, g1[2])

	g2 := ext.Groups["2"]
	require.Len(t, g2, 3)
	assert.Equal(t, models.StatusUncertain, g2[0].Status)
	assert.Equal(t, models.StatusOff, g2[1].Status)
	assert.Equal(t, models.StatusOn, g2[2].Status)
}

func TestTableAdapterEmptyMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Сьогодні відключення не заплановані.</p></body></html>`))
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	ext, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.NoError(t, err)
	assert.True(t, ext.Empty)
}

func TestTableAdapterScriptFallback(t *testing.T) {
	// No table, but the data ships in an embedded payload.
	page := `<html><body><div id="app"></div>
<script>var scheduleData = {"1": [{"time": "10:00-12:00", "status": "off"}]};</script>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	ext, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.NoError(t, err)
	require.Contains(t, ext.Groups, "1")
	assert.Equal(t, models.StatusOff, ext.Groups["1"][0].Status)
}

func TestTableAdapterDegenerateTable(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"rowless table", `<html><body><table class="shutdowns-table"></table></body></html>`},
		{"header-only table", `<html><body><table><tr><th>Група</th><th>00:00-00:30</th></tr></table></body></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.page))
			}))
			defer srv.Close()

			a := &TableAdapter{client: srv.Client()}
			_, err := a.Fetch(context.Background(), tableLocation(srv.URL))
			require.Error(t, err)
			assert.Equal(t, ReasonNoRecognizedFormat, ReasonOf(err))
		})
	}
}

func TestTableAdapterRowlessTableWithMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<table class="shutdowns-table"></table>
<p>Сьогодні відключення не заплановані.</p>
</body></html>`))
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	ext, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.NoError(t, err)
	assert.True(t, ext.Empty)
}

func TestTableAdapterUnrecognizedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Новини компанії</h1></body></html>`))
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	_, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.Error(t, err)
	assert.Equal(t, ReasonNoRecognizedFormat, ReasonOf(err))
}

func TestTableAdapterHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := &TableAdapter{client: srv.Client()}
	_, err := a.Fetch(context.Background(), tableLocation(srv.URL))
	require.Error(t, err)
	assert.Equal(t, ReasonHTTPStatus, ReasonOf(err))
}

func TestCellStatusPrecedence(t *testing.T) {
	tests := []struct {
		name string
		html string
		want models.Status
	}{
		{"attr red beats text", `<td style="color: red">світло є</td>`, models.StatusOff},
		{"attr green beats uncertain text", `<td class="green">можливо</td>`, models.StatusOn},
		{"uncertain attr", `<td bgcolor="gray"></td>`, models.StatusUncertain},
		{"off keyword", `<td>немає</td>`, models.StatusOff},
		{"bare cell defaults on", `<td></td>`, models.StatusOn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, "<table><tr>"+tt.html+"</tr></table>")
			cell := doc.Find("td").First()
			assert.Equal(t, tt.want, cellStatus(cell))
		})
	}
}

func TestDefaultGridLabels(t *testing.T) {
	labels := DefaultGridLabels(30)
	require.Len(t, labels, 48)
	assert.Equal(t, "00:00-00:30", labels[0])
	assert.Equal(t, "23:30-24:00", labels[47])

	hourly := DefaultGridLabels(60)
	require.Len(t, hourly, 24)
	assert.Equal(t, "09:00-10:00", hourly[9])
}
