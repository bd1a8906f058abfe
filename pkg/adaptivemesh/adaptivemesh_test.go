package adaptivemesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestProcessEndToEnd(t *testing.T) {
	layers := []string{
		";FLAVOR:RepRap\nG28\n",
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X10.0 Y10.0 E1\nG1 X50.0 Y20.0 E2\n",
		";MESH_CALC\n",
	}

	res := Process(layers, Offsets{})
	if !res.Found {
		t.Fatal("expected geometry to be found")
	}
	if res.Scan.Box != (BoundingBox{MinX: 10, MaxX: 50, MinY: 10, MaxY: 20}) {
		t.Errorf("unexpected discovered box: %+v", res.Scan.Box)
	}
	if got, want := res.Command.String(), "M557 X0.0:60.0 Y0.0:30.0 S15"; got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
	if got, want := res.Command.Diagnostic(), "; [AdaptiveMesh] bounds X0.0:60.0 Y0.0:30.0"; got != want {
		t.Errorf("diagnostic = %q, want %q", got, want)
	}
	if res.Inserted != 1 {
		t.Errorf("expected 1 inserted block, got %d", res.Inserted)
	}

	if len(res.Layers) != len(layers) {
		t.Fatalf("layer count changed: %d -> %d", len(layers), len(res.Layers))
	}
	for i := 0; i < 2; i++ {
		if res.Layers[i] != layers[i] {
			t.Errorf("block %d changed: %q", i, res.Layers[i])
		}
	}
	want := "; [AdaptiveMesh] bounds X0.0:60.0 Y0.0:30.0\nM557 X0.0:60.0 Y0.0:30.0 S15\n"
	if res.Layers[2] != want {
		t.Errorf("marker block = %q, want %q", res.Layers[2], want)
	}
}

func TestProcessNoGeometryPassThrough(t *testing.T) {
	layers := []string{
		";FLAVOR:RepRap\nG28\nG1 X10 Y10 E5\n",
		";LAYER:0\n;TYPE:SKIRT\nG1 X10 Y10 E1\n",
		";MESH_CALC\n",
	}

	res := Process(layers, Offsets{X: 5, Y: 5})
	if res.Found {
		t.Fatal("expected nothing found")
	}
	if res.Inserted != 0 {
		t.Errorf("expected no insertion, got %d", res.Inserted)
	}
	if len(res.Layers) != len(layers) {
		t.Fatalf("layer count changed")
	}
	for i := range layers {
		if res.Layers[i] != layers[i] {
			t.Errorf("block %d changed: %q", i, res.Layers[i])
		}
	}
}

func TestProcessSkirtBetweenAllowedRegions(t *testing.T) {
	layers := []string{
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X100 Y100 E1\n",
		";TYPE:SKIRT\nG1 X120 Y300 E2\nG1 X5 Y5 E3\n",
		";TYPE:FILL\nG1 X140 Y110 E4\n",
		";MESH_CALC\n",
	}

	res := Process(layers, Offsets{})
	if got, want := res.Command.String(), "M557 X90.0:150.0 Y90.0:120.0 S15"; got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestProcessBedLimitsClamp(t *testing.T) {
	layers := []string{
		";BED_LIMITS X200 Y180\n",
		";LAYER:0\n;TYPE:FILL\nG1 X20 Y20 E1\nG1 X195 Y175 E2\n",
		";MESH_CALC",
	}

	res := Process(layers, Offsets{})
	if got, want := res.Command.String(), "M557 X10.0:200.0 Y10.0:180.0 S50"; got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

type failingSettings struct{}

func (failingSettings) Offsets() (Offsets, error) {
	return Offsets{X: 99, Y: 99}, errors.New("settings unavailable")
}

func TestExecuteSettingsFallback(t *testing.T) {
	layers := []string{
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X10.0 Y10.0 E1\nG1 X50.0 Y20.0 E2\n",
		";MESH_CALC",
	}

	out := Execute(layers, failingSettings{})
	want := "; [AdaptiveMesh] bounds X0.0:60.0 Y0.0:30.0\nM557 X0.0:60.0 Y0.0:30.0 S15"
	if out[1] != want {
		t.Errorf("failed settings should fall back to zero offsets, got %q", out[1])
	}

	out = Execute(layers, nil)
	if out[1] != want {
		t.Errorf("nil settings should use zero offsets, got %q", out[1])
	}

	out = Execute(layers, StaticSettings{X: 5, Y: -5})
	want = "; [AdaptiveMesh] bounds X0.0:60.0 Y0.0:30.0\nM557 X5.0:65.0 Y-5.0:25.0 S15"
	if out[1] != want {
		t.Errorf("static offsets not applied, got %q", out[1])
	}
}

func TestResolveOffsets(t *testing.T) {
	off, err := ResolveOffsets(failingSettings{})
	if err == nil {
		t.Error("expected error to be reported")
	}
	if off != (Offsets{}) {
		t.Errorf("expected zero offsets on failure, got %+v", off)
	}

	off, err = ResolveOffsets(StaticSettings{X: 3, Y: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if off != (Offsets{X: 3, Y: 4}) {
		t.Errorf("unexpected offsets %+v", off)
	}
}

func TestDefinition(t *testing.T) {
	def := Definition()
	if def.Key != "AdaptiveMesh" {
		t.Errorf("unexpected key %q", def.Key)
	}
	for _, key := range []string{SettingXOffset, SettingYOffset} {
		s, ok := def.Settings[key]
		if !ok {
			t.Fatalf("missing setting %s", key)
		}
		if s.Type != "int" || s.DefaultValue != 0 {
			t.Errorf("setting %s: unexpected definition %+v", key, s)
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(DefinitionJSON(), &raw); err != nil {
		t.Fatalf("definition is not valid JSON: %v", err)
	}
}

func ExampleProcess() {
	layers := []string{
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X10.0 Y10.0 E1\nG1 X50.0 Y20.0 E2\n",
		";MESH_CALC\n",
	}

	res := Process(layers, Offsets{})
	fmt.Print(res.Layers[1])
	// Output:
	// ; [AdaptiveMesh] bounds X0.0:60.0 Y0.0:30.0
	// M557 X0.0:60.0 Y0.0:30.0 S15
}
