package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreytyu/utm-buffer/internal/buffer"
	"github.com/andreytyu/utm-buffer/internal/config"
	"github.com/andreytyu/utm-buffer/internal/geo"
	"github.com/andreytyu/utm-buffer/internal/reproject"
	"github.com/andreytyu/utm-buffer/internal/storage"

	"github.com/paulmach/orb"
)

const input = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "a", "properties": {"name": "berlin"}, "geometry": {"type": "Point", "coordinates": [13.4, 52.5]}},
    {"type": "Feature", "id": "b", "properties": {"name": "santiago"}, "geometry": {"type": "Point", "coordinates": [-70.6, -33.4]}},
    {"type": "Feature", "id": "c", "properties": {"name": "block"}, "geometry": {"type": "Polygon", "coordinates": [[[10, 50], [10.01, 50], [10.01, 50.01], [10, 50.01], [10, 50]]]}}
  ]
}`

func distance(d float64) *float64 {
	return &d
}

func setup(t *testing.T) (*storage.Store, *reproject.Reprojector, string) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "in.geojson"), []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}

	rp := reproject.New()
	t.Cleanup(rp.Close)

	return storage.New(), rp, dir
}

func TestProcessDataset(t *testing.T) {
	store, rp, dir := setup(t)
	ds := config.Dataset{
		Name:     "cities",
		Input:    filepath.Join(dir, "in.geojson"),
		Output:   filepath.Join(dir, "out", "buffers.geojson"),
		Preview:  filepath.Join(dir, "out", "buffers.webp"),
		Distance: distance(200),
	}

	if err := ProcessDataset(context.Background(), store, rp, ds, Options{PreviewSize: 128, Concurrency: 2}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(ds.Output)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geo.DecodeCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("features = %d; want 3", len(fc.Features))
	}

	names := []string{"berlin", "santiago", "block"}
	origins := []orb.Point{{13.4, 52.5}, {-70.6, -33.4}, {10.005, 50.005}}
	for i, f := range fc.Features {
		if f.Properties["name"] != names[i] {
			t.Errorf("feature %d name = %v; want %s", i, f.Properties["name"], names[i])
		}
		if _, ok := f.Geometry.(orb.Polygon); !ok {
			t.Errorf("feature %d geometry is %T; want orb.Polygon", i, f.Geometry)
			continue
		}
		if !f.Geometry.Bound().Contains(origins[i]) {
			t.Errorf("feature %d buffer %v does not contain %v", i, f.Geometry.Bound(), origins[i])
		}
	}

	if info, err := os.Stat(ds.Preview); err != nil || info.Size() == 0 {
		t.Fatalf("preview not written: %v", err)
	}
}

func TestProcessDatasetSkipsExisting(t *testing.T) {
	store, rp, dir := setup(t)
	out := filepath.Join(dir, "existing.geojson")
	if err := os.WriteFile(out, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds := config.Dataset{Name: "cities", Input: filepath.Join(dir, "in.geojson"), Output: out, Distance: distance(10)}
	if err := ProcessDataset(context.Background(), store, rp, ds, Options{}); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(out); string(data) != "keep" {
		t.Fatalf("existing output overwritten without force: %q", data)
	}

	if err := ProcessDataset(context.Background(), store, rp, ds, Options{Force: true}); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(out); string(data) == "keep" {
		t.Fatal("forced run did not overwrite output")
	}
}

func TestProcessDatasetErrors(t *testing.T) {
	store, rp, dir := setup(t)

	degenerate := filepath.Join(dir, "degenerate.geojson")
	content := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[]}}]}`
	if err := os.WriteFile(degenerate, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		ds      config.Dataset
		wantErr error
	}{
		{"no distance", config.Dataset{Name: "a", Input: filepath.Join(dir, "in.geojson"), Output: filepath.Join(dir, "a.geojson")}, ErrNoDistance},
		{"degenerate geometry", config.Dataset{Name: "b", Input: degenerate, Output: filepath.Join(dir, "b.geojson"), Distance: distance(10)}, buffer.ErrDegenerateGeometry},
		{"invalid source crs", config.Dataset{Name: "c", Input: filepath.Join(dir, "in.geojson"), Output: filepath.Join(dir, "c.geojson"), Distance: distance(10), SourceEPSG: 99999}, reproject.ErrInvalidCRS},
		{"missing input", config.Dataset{Name: "d", Input: filepath.Join(dir, "nope.geojson"), Output: filepath.Join(dir, "d.geojson"), Distance: distance(10)}, os.ErrNotExist},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ProcessDataset(context.Background(), store, rp, tc.ds, Options{})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v; want %v", err, tc.wantErr)
			}
			if _, statErr := os.Stat(tc.ds.Output); statErr == nil {
				t.Fatalf("output written despite error")
			}
		})
	}
}
