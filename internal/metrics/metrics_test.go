// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordUpload(t *testing.T) {
	before := testutil.ToFloat64(UploadsTotal.WithLabelValues("photo"))
	RecordUpload("photo", 2048)
	after := testutil.ToFloat64(UploadsTotal.WithLabelValues("photo"))
	if after != before+1 {
		t.Errorf("UploadsTotal photo = %v, want %v", after, before+1)
	}
}

func TestRecordEditRejected(t *testing.T) {
	for _, reason := range []string{"not_ready", "invalid", "finalized", "not_found"} {
		before := testutil.ToFloat64(EditsRejected.WithLabelValues(reason))
		RecordEditRejected(reason)
		after := testutil.ToFloat64(EditsRejected.WithLabelValues(reason))
		if after != before+1 {
			t.Errorf("EditsRejected[%s] = %v, want %v", reason, after, before+1)
		}
	}
}

func TestRecordPreview(t *testing.T) {
	okBefore := testutil.ToFloat64(PreviewsGenerated.WithLabelValues("image"))
	RecordPreview("image", 120*time.Millisecond, nil)
	if got := testutil.ToFloat64(PreviewsGenerated.WithLabelValues("image")); got != okBefore+1 {
		t.Errorf("PreviewsGenerated = %v, want %v", got, okBefore+1)
	}

	failBefore := testutil.ToFloat64(PreviewFailures.WithLabelValues("document"))
	RecordPreview("document", 50*time.Millisecond, errors.New("render failed"))
	if got := testutil.ToFloat64(PreviewFailures.WithLabelValues("document")); got != failBefore+1 {
		t.Errorf("PreviewFailures = %v, want %v", got, failBefore+1)
	}
	// A failed render must not count as generated.
	if got := testutil.ToFloat64(PreviewsGenerated.WithLabelValues("document")); got != 0 {
		t.Errorf("PreviewsGenerated[document] = %v, want 0", got)
	}
}

func TestRecordPreviewFallback(t *testing.T) {
	before := testutil.ToFloat64(PreviewFallbacks.WithLabelValues("document", "image"))
	RecordPreviewFallback("document", "image")
	if got := testutil.ToFloat64(PreviewFallbacks.WithLabelValues("document", "image")); got != before+1 {
		t.Errorf("PreviewFallbacks = %v, want %v", got, before+1)
	}
}

func TestRecordFinalization(t *testing.T) {
	before := testutil.ToFloat64(FinalizationsTotal.WithLabelValues("completed"))
	RecordFinalization("completed")
	if got := testutil.ToFloat64(FinalizationsTotal.WithLabelValues("completed")); got != before+1 {
		t.Errorf("FinalizationsTotal = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("APIActiveRequests = %v, want %v", got, base+2)
	}

	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("APIActiveRequests = %v, want %v", got, base)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/session/upload/photo", "201"))
	RecordAPIRequest("POST", "/api/v1/session/upload/photo", "201", 25*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/session/upload/photo", "201"))
	if after != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", after, before+1)
	}
}

// Concurrent recording must be safe; the prometheus client guarantees this
// but a regression in our helpers would surface as a race here.
func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				RecordUpload("audio", 1024)
				RecordEditRejected("invalid")
				RecordPreview("image", time.Millisecond, nil)
				TrackActiveRequest(true)
				TrackActiveRequest(false)
			}
		}()
	}
	wg.Wait()
}
