package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/storage/parquet"
	lbtest "github.com/xtxerr/logbook/internal/testing"
)

func TestScalarPath(t *testing.T) {
	s := lbtest.NewStore(t, "")
	now := time.Now()
	s.WriteScalar("vessels.self", "navigation.speedOverGround", "a.parquet", []lbtest.Sample{{At: now, Value: lbtest.F(1)}})

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), s.Dir("vessels.self", "navigation.speedOverGround"))
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if sch.IsComposite() {
		t.Errorf("expected scalar, got %+v", sch)
	}
}

func TestJSONFallbackIsNotComposite(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteJSON("vessels.self", "navigation.courseRhumbline", "a.parquet", []lbtest.JSONSample{
		{At: time.Now(), JSON: lbtest.S(`{"bearing":1}`)},
	})

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), s.Dir("vessels.self", "navigation.courseRhumbline"))
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if sch.IsComposite() {
		t.Errorf("value_json must not be a component: %+v", sch)
	}
}

func TestCompositePath(t *testing.T) {
	s := lbtest.NewStore(t, "")
	now := time.Now()
	s.WritePositions("vessels.self", "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: now, Latitude: lbtest.F(60.1), Longitude: lbtest.F(24.9)},
	})

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), s.Dir("vessels.self", "navigation.position"))
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(sch) != 3 {
		t.Fatalf("expected 3 components, got %+v", sch)
	}

	want := []types.Component{
		{Name: "latitude", Column: "value_latitude", DataType: types.DataNumeric},
		{Name: "longitude", Column: "value_longitude", DataType: types.DataNumeric},
		{Name: "altitude", Column: "value_altitude", DataType: types.DataNumeric},
	}
	for i := range want {
		if sch[i] != want[i] {
			t.Errorf("component %d = %+v, want %+v", i, sch[i], want[i])
		}
	}
}

func TestMixedComponentTypes(t *testing.T) {
	s := lbtest.NewStore(t, "")
	ts := parquet.FormatTimestamp(time.Now())
	lbtest.WriteRows(s, "vessels.self", "navigation.attitude", "a.parquet", []parquet.AttitudeRow{
		{SignalKTimestamp: ts, ReceivedTimestamp: ts, Roll: parquet.Float(0.1), Mode: parquet.String("auto"), Stabilized: parquet.Bool(true)},
	})

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), s.Dir("vessels.self", "navigation.attitude"))
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}

	got := make(map[string]types.DataType)
	for _, c := range sch {
		got[c.Name] = c.DataType
	}
	if got["roll"] != types.DataNumeric || got["mode"] != types.DataString || got["stabilized"] != types.DataBoolean {
		t.Errorf("unexpected component types %+v", got)
	}
}

func TestMissingDirIsScalar(t *testing.T) {
	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if sch.IsComposite() {
		t.Errorf("expected scalar for missing dir, got %+v", sch)
	}
}

func TestEmptyDirIsNotCached(t *testing.T) {
	s := lbtest.NewStore(t, "")
	dir := s.Dir("vessels.self", "navigation.position")

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), dir)
	if err != nil || sch.IsComposite() {
		t.Fatalf("empty dir: %+v %v", sch, err)
	}

	// The first files of a new path are seen without waiting for the TTL.
	s.WritePositions("vessels.self", "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: time.Now(), Latitude: lbtest.F(60.1), Longitude: lbtest.F(24.9)},
	})

	sch, err = p.Schema(context.Background(), dir)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if !sch.IsComposite() || len(sch) != 2 {
		t.Errorf("expected latitude and longitude components, got %+v", sch)
	}
}

func TestUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.parquet"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewProbe(5, time.Minute)
	if _, err := p.Schema(context.Background(), dir); err == nil {
		t.Error("expected error when no file is readable")
	}
}

func TestSchemaIsCached(t *testing.T) {
	s := lbtest.NewStore(t, "")
	now := time.Now()
	dir := s.Dir("vessels.self", "navigation.position")
	s.WriteScalar("vessels.self", "navigation.position", "a.parquet", []lbtest.Sample{{At: now, Value: lbtest.F(1)}})

	p := NewProbe(5, time.Minute)
	sch, err := p.Schema(context.Background(), dir)
	if err != nil || sch.IsComposite() {
		t.Fatalf("first read: %+v %v", sch, err)
	}

	// A newer composite file is not seen until the entry is invalidated.
	s.WritePositions("vessels.self", "navigation.position", "b.parquet", []lbtest.PositionSample{
		{At: now, Latitude: lbtest.F(1)},
	})
	future := time.Now().Add(time.Hour)
	os.Chtimes(filepath.Join(dir, "b.parquet"), future, future)

	sch, _ = p.Schema(context.Background(), dir)
	if sch.IsComposite() {
		t.Error("expected cached scalar schema")
	}

	p.Invalidate(dir)
	sch, err = p.Schema(context.Background(), dir)
	if err != nil || !sch.IsComposite() {
		t.Errorf("after invalidate: %+v %v", sch, err)
	}
}

func TestComponentName(t *testing.T) {
	tests := []struct {
		column string
		want   string
		ok     bool
	}{
		{"value_latitude", "latitude", true},
		{"value_json", "", false},
		{"value", "", false},
		{"value_", "", false},
		{"signalk_timestamp", "", false},
		{"value_a?b", "", false},
	}
	for _, tt := range tests {
		got, ok := ComponentName(tt.column)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ComponentName(%q) = %q, %v", tt.column, got, ok)
		}
	}
}
