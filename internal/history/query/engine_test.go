package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xtxerr/logbook/internal/history/pathspec"
	"github.com/xtxerr/logbook/internal/history/schema"
	"github.com/xtxerr/logbook/internal/history/types"
	lbtest "github.com/xtxerr/logbook/internal/testing"
)

const vessel = "vessels.self"

var base = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return base.Add(d) }

func newEngine(t *testing.T, s *lbtest.Store) *Engine {
	t.Helper()

	e, err := New(s.Layout, schema.NewProbe(5, time.Minute), Options{
		MemoryLimit: "256MB",
		Threads:     2,
		MaxParallel: 4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func fiveMinutes() types.TimeRange {
	return types.TimeRange{From: base, To: base.Add(5 * time.Minute)}
}

func run(t *testing.T, e *Engine, paths string) []types.Series {
	t.Helper()

	series, err := e.Run(context.Background(), Request{
		Context:    vessel,
		Range:      fiveMinutes(),
		Resolution: 60000,
		Specs:      pathspec.Parse(paths),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return series
}

func TestPingAndStats(t *testing.T) {
	s := lbtest.NewStore(t, "")
	e := newEngine(t, s)

	if err := e.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	e.Close()
	if err := e.Ping(context.Background()); err == nil {
		t.Error("expected error after Close")
	}
	if _, err := e.Run(context.Background(), Request{Range: fiveMinutes(), Resolution: 1000}); err == nil {
		t.Error("expected Run to fail after Close")
	}
}

func TestSparseWindow(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteScalar(vessel, "navigation.speedOverGround", "a.parquet", []lbtest.Sample{
		{At: at(-time.Second), Value: lbtest.F(99)},
		{At: at(10 * time.Second), Value: lbtest.F(10)},
		{At: at(40 * time.Second), Value: lbtest.F(20)},
		{At: at(150 * time.Second), Value: lbtest.F(5)},
		{At: at(4*time.Minute + 59*time.Second), Value: lbtest.F(7)},
		{At: at(5 * time.Minute), Value: lbtest.F(99)},
	})
	s.WritePositions(vessel, "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: at(time.Minute), Latitude: lbtest.F(60.1), Longitude: lbtest.F(24.9)},
		{At: at(200 * time.Second), Latitude: lbtest.F(60.2), Longitude: lbtest.F(25.0)},
	})

	e := newEngine(t, s)
	series := run(t, e, "navigation.speedOverGround,navigation.position")

	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}

	speed := series[0]
	if speed.Kind != types.KindScalar {
		t.Errorf("speed kind = %s", speed.Kind)
	}
	want := map[string]float64{
		"2026-10-17T10:00:00.000Z": 15,
		"2026-10-17T10:02:00.000Z": 5,
		"2026-10-17T10:04:00.000Z": 7,
	}
	if len(speed.Points) != len(want) {
		t.Fatalf("speed points = %+v", speed.Points)
	}
	for _, p := range speed.Points {
		w, ok := want[p.Timestamp]
		if !ok || p.Scalar == nil || *p.Scalar != w {
			t.Errorf("unexpected speed point %s %v", p.Timestamp, p.Value())
		}
	}

	pos := series[1]
	if pos.Kind != types.KindComposite {
		t.Errorf("position kind = %s", pos.Kind)
	}
	if len(pos.Points) != 2 {
		t.Fatalf("position points = %+v", pos.Points)
	}
	if pos.Points[0].Timestamp != "2026-10-17T10:01:00.000Z" {
		t.Errorf("first position bucket = %s", pos.Points[0].Timestamp)
	}
	if lat, _ := pos.Points[0].Object["latitude"].(float64); lat != 60.1 {
		t.Errorf("latitude = %v", pos.Points[0].Object["latitude"])
	}
	if _, ok := pos.Points[0].Object["altitude"]; ok {
		t.Error("null altitude must be omitted")
	}

	// At most one row per bucket of the window.
	for _, s := range series {
		if len(s.Points) > 5 {
			t.Errorf("%s: %d points in a 5 bucket window", s.Spec.Path, len(s.Points))
		}
	}
}

func TestLatitudeOnlyBucket(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WritePositions(vessel, "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: at(10 * time.Second), Latitude: lbtest.F(60.5)},
	})

	series := run(t, newEngine(t, s), "navigation.position")
	if len(series[0].Points) != 1 {
		t.Fatalf("points = %+v", series[0].Points)
	}
	obj := series[0].Points[0].Object
	if len(obj) != 1 || obj["latitude"] != 60.5 {
		t.Errorf("object = %v, want only latitude", obj)
	}
}

func TestCompositeMethods(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WritePositions(vessel, "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: at(10 * time.Second), Latitude: lbtest.F(1), Longitude: lbtest.F(10)},
		{At: at(20 * time.Second), Latitude: lbtest.F(2), Longitude: lbtest.F(20)},
		{At: at(30 * time.Second), Latitude: lbtest.F(3), Longitude: lbtest.F(30)},
	})
	e := newEngine(t, s)

	tests := []struct {
		method string
		lat    float64
	}{
		{"first", 1},
		{"last", 3},
		{"min", 1},
		{"max", 3},
		{"average", 2},
		{"middle_index", 1}, // degrades to first
	}
	for _, tt := range tests {
		series := run(t, e, "navigation.position:"+tt.method)
		if len(series[0].Points) != 1 {
			t.Fatalf("%s: points = %+v", tt.method, series[0].Points)
		}
		if got := series[0].Points[0].Object["latitude"]; got != tt.lat {
			t.Errorf("%s: latitude = %v, want %v", tt.method, got, tt.lat)
		}
	}
}

func TestScalarMethods(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteScalar(vessel, "environment.depth.belowKeel", "a.parquet", []lbtest.Sample{
		{At: at(10 * time.Second), Value: lbtest.F(4)},
		{At: at(20 * time.Second), Value: nil},
		{At: at(30 * time.Second), Value: lbtest.F(1)},
		{At: at(40 * time.Second), Value: lbtest.F(3)},
		{At: at(50 * time.Second), Value: lbtest.F(2)},
	})
	e := newEngine(t, s)

	tests := []struct {
		method string
		want   float64
	}{
		{"first", 4},
		{"last", 2},
		{"min", 1},
		{"max", 4},
		{"average", 2.5},
		{"mid", 2.5},
		{"middle_index", 3}, // ordered 4,1,3,2: element 4/2+1
	}
	for _, tt := range tests {
		series := run(t, e, "environment.depth.belowKeel:"+tt.method)
		if len(series[0].Points) != 1 {
			t.Fatalf("%s: points = %+v", tt.method, series[0].Points)
		}
		p := series[0].Points[0]
		if p.Scalar == nil || *p.Scalar != tt.want {
			t.Errorf("%s: value = %v, want %v", tt.method, p.Value(), tt.want)
		}
	}
}

func TestJSONFallback(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteJSON(vessel, "navigation.courseRhumbline.nextPoint", "a.parquet", []lbtest.JSONSample{
		{At: at(10 * time.Second), JSON: lbtest.S(`{"bearing":1.5,"distance":1200}`)},
		{At: at(70 * time.Second), Value: lbtest.S("3.5")},
		{At: at(130 * time.Second), Value: lbtest.S("not a number")},
	})

	series := run(t, newEngine(t, s), "navigation.courseRhumbline.nextPoint")
	points := series[0].Points
	if len(points) != 2 {
		t.Fatalf("points = %+v", points)
	}

	if points[0].Object == nil || points[0].Object["bearing"] != 1.5 {
		t.Errorf("expected decoded object, got %v", points[0].Value())
	}
	if points[1].Scalar == nil || *points[1].Scalar != 3.5 {
		t.Errorf("expected numeric 3.5, got %v", points[1].Value())
	}
	if series[0].Kind != types.KindScalar {
		t.Errorf("kind = %s", series[0].Kind)
	}
}

func TestMissingFilesYieldEmptySeries(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteScalar(vessel, "navigation.speedOverGround", "a.parquet", []lbtest.Sample{
		{At: at(10 * time.Second), Value: lbtest.F(1)},
	})

	series := run(t, newEngine(t, s), "navigation.headingTrue,navigation.speedOverGround")
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if !series[0].Empty() {
		t.Errorf("missing path should be empty: %+v", series[0])
	}
	if series[1].Empty() {
		t.Error("existing path should have data")
	}
}

func TestInvalidPathYieldsEmptySeries(t *testing.T) {
	s := lbtest.NewStore(t, "")
	series := run(t, newEngine(t, s), "../etc/passwd,navigation.speedOverGround")
	if len(series) != 2 || !series[0].Empty() {
		t.Errorf("unexpected series %+v", series)
	}
}

func TestRunRejectsBadRequest(t *testing.T) {
	e := newEngine(t, lbtest.NewStore(t, ""))

	if _, err := e.Run(context.Background(), Request{
		Range:      types.TimeRange{From: base, To: base},
		Resolution: 1000,
	}); err == nil {
		t.Error("expected error for empty range")
	}
	if _, err := e.Run(context.Background(), Request{Range: fiveMinutes()}); err == nil {
		t.Error("expected error for zero resolution")
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	s := lbtest.NewStore(t, "")
	paths := []string{"navigation.speedOverGround", "navigation.headingTrue", "environment.wind.speedApparent"}
	for _, p := range paths {
		s.WriteScalar(vessel, p, "a.parquet", []lbtest.Sample{{At: at(time.Second), Value: lbtest.F(1)}})
	}
	e := newEngine(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	series, err := e.Run(ctx, Request{
		Context:    vessel,
		Range:      fiveMinutes(),
		Resolution: 60000,
		Specs:      pathspec.Parse("navigation.speedOverGround,navigation.headingTrue,environment.wind.speedApparent"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if series != nil {
		t.Errorf("expected no partial result, got %+v", series)
	}
}

func TestRunCanceledWhileQuerying(t *testing.T) {
	s := lbtest.NewStore(t, "")
	paths := []string{"navigation.speedOverGround", "navigation.headingTrue", "environment.wind.speedApparent"}
	for _, p := range paths {
		s.WriteScalar(vessel, p, "a.parquet", []lbtest.Sample{{At: at(time.Second), Value: lbtest.F(1)}})
	}
	e := newEngine(t, s)

	// Every task that got a connection blocks until the request ends.
	held := make(chan struct{}, len(paths))
	e.afterAcquire = func(ctx context.Context) {
		held <- struct{}{}
		<-ctx.Done()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		series []types.Series
		err    error
	}
	done := make(chan result, 1)
	go func() {
		series, err := e.Run(ctx, Request{
			Context:    vessel,
			Range:      fiveMinutes(),
			Resolution: 60000,
			Specs:      pathspec.Parse("navigation.speedOverGround,navigation.headingTrue,environment.wind.speedApparent"),
		})
		done <- result{series, err}
	}()

	select {
	case <-held:
	case <-time.After(10 * time.Second):
		t.Fatal("no query acquired a connection")
	}
	if inUse := e.DBStats().InUse; inUse == 0 {
		t.Error("expected a connection in use while querying")
	}

	cancel()

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	if res.series != nil {
		t.Errorf("expected no partial result, got %+v", res.series)
	}
	if inUse := e.DBStats().InUse; inUse != 0 {
		t.Errorf("%d connections still in use after Run returned", inUse)
	}
}

func TestRunDeadlineWhileQuerying(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteScalar(vessel, "navigation.speedOverGround", "a.parquet", []lbtest.Sample{{At: at(time.Second), Value: lbtest.F(1)}})
	e := newEngine(t, s)

	e.afterAcquire = func(ctx context.Context) { <-ctx.Done() }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	series, err := e.Run(ctx, Request{
		Context:    vessel,
		Range:      fiveMinutes(),
		Resolution: 60000,
		Specs:      pathspec.Parse("navigation.speedOverGround"),
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if series != nil {
		t.Errorf("expected no partial result, got %+v", series)
	}
	if inUse := e.DBStats().InUse; inUse != 0 {
		t.Errorf("%d connections still in use after Run returned", inUse)
	}
}

func TestCompositePathAppearsAfterEmptyDir(t *testing.T) {
	s := lbtest.NewStore(t, "")
	e := newEngine(t, s)

	series := run(t, e, "navigation.position")
	if !series[0].Empty() {
		t.Fatalf("expected empty series before any file, got %+v", series[0])
	}

	s.WritePositions(vessel, "navigation.position", "a.parquet", []lbtest.PositionSample{
		{At: at(10 * time.Second), Latitude: lbtest.F(60.1), Longitude: lbtest.F(24.9)},
	})

	series = run(t, e, "navigation.position")
	if series[0].Kind != types.KindComposite || len(series[0].Points) != 1 {
		t.Fatalf("expected one composite point, got %+v", series[0])
	}
	if obj := series[0].Points[0].Object; obj["latitude"] != 60.1 {
		t.Errorf("point = %v", obj)
	}
}

func TestSelfAlias(t *testing.T) {
	self := "vessels.urn:mrn:imo:mmsi:230099999"
	s := lbtest.NewStore(t, self)
	s.WriteScalar(self, "navigation.speedOverGround", "a.parquet", []lbtest.Sample{
		{At: at(10 * time.Second), Value: lbtest.F(6)},
	})

	series := run(t, newEngine(t, s), "navigation.speedOverGround")
	if series[0].Empty() {
		t.Error("vessels.self should resolve to the configured self context")
	}
}

func TestDiscovery(t *testing.T) {
	s := lbtest.NewStore(t, "")
	s.WriteScalar(vessel, "navigation.speedOverGround", "a.parquet", []lbtest.Sample{
		{At: at(time.Minute), Value: lbtest.F(1)},
	})
	s.WriteScalar(vessel, "navigation.headingTrue", "a.parquet", []lbtest.Sample{
		{At: at(-2 * time.Hour), Value: lbtest.F(1)},
	})
	s.WriteScalar("vessels.urn:mrn:imo:mmsi:230099999", "navigation.speedOverGround", "a.parquet", []lbtest.Sample{
		{At: at(-3 * time.Hour), Value: lbtest.F(1)},
	})
	e := newEngine(t, s)
	ctx := context.Background()

	paths, err := e.AvailablePaths(ctx, vessel, fiveMinutes())
	if err != nil {
		t.Fatalf("AvailablePaths: %v", err)
	}
	if len(paths) != 1 || paths[0] != "navigation.speedOverGround" {
		t.Errorf("paths = %v", paths)
	}

	contexts, err := e.AvailableContexts(ctx, fiveMinutes())
	if err != nil {
		t.Fatalf("AvailableContexts: %v", err)
	}
	if len(contexts) != 1 || contexts[0] != vessel {
		t.Errorf("contexts = %v", contexts)
	}

	wide := types.TimeRange{From: at(-4 * time.Hour), To: at(time.Hour)}
	contexts, err = e.AvailableContexts(ctx, wide)
	if err != nil {
		t.Fatalf("AvailableContexts: %v", err)
	}
	if len(contexts) != 2 {
		t.Errorf("contexts over wide range = %v", contexts)
	}

	paths, err = e.AvailablePaths(ctx, vessel, wide)
	if err != nil || len(paths) != 2 {
		t.Errorf("paths over wide range = %v, %v", paths, err)
	}
}
