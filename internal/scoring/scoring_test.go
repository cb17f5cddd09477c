package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"carbon-scribe/credit-ledger/internal/domain"
)

func sampleReport() *domain.Report {
	biomass := 12.5
	return &domain.Report{
		ID:             uuid.New(),
		ProjectID:      uuid.New(),
		MonitoringData: datatypes.NewJSONType(domain.MonitoringData{BiomassTonnes: &biomass}),
	}
}

func TestFixed(t *testing.T) {
	res, err := Fixed{TonnageEstimate: 80, QualityScore: 0.9}.Score(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.TonnageEstimate)
	assert.Equal(t, 0.9, res.QualityScore)
	assert.False(t, res.ScoredAt.IsZero())
}

func TestRemoteScore(t *testing.T) {
	report := sampleReport()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, report.ID, req.ReportID)
		require.NotNil(t, req.MonitoringData.BiomassTonnes)
		assert.Equal(t, 12.5, *req.MonitoringData.BiomassTonnes)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"tonnage_estimate":   42.25,
			"quality_score":      0.75,
			"evidence_reference": "model-run-7",
		})
	}))
	defer srv.Close()

	res, err := NewRemote(srv.URL+"/", "key", time.Second).Score(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 42.25, res.TonnageEstimate)
	assert.Equal(t, 0.75, res.QualityScore)
	assert.Equal(t, "model-run-7", res.EvidenceReference)
}

func TestRemoteScoreErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model offline", http.StatusServiceUnavailable)
		},
		"missing fields": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"quality_score":0.5}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewRemote(srv.URL, "", time.Second).Score(context.Background(), sampleReport())
			assert.Error(t, err)
		})
	}
}
