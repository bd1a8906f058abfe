package adaptivemesh

import (
	"testing"
)

func TestScanIgnoresStartGcode(t *testing.T) {
	layers := []string{
		";FLAVOR:RepRap\n;TYPE:WALL-OUTER\nG1 X1.0 Y1.0 E5\n",
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X20.0 Y30.0 E1\nG1 X40.0 Y35.0 E2\n",
	}

	res := Scan(layers)
	if !res.Found {
		t.Fatal("expected geometry to be found")
	}
	if res.Box.MinX != 20 || res.Box.MaxX != 40 || res.Box.MinY != 30 || res.Box.MaxY != 35 {
		t.Errorf("unexpected box: %+v", res.Box)
	}
	if res.Moves != 2 {
		t.Errorf("expected 2 absorbed moves, got %d", res.Moves)
	}
}

func TestScanLayerZeroIsPermanent(t *testing.T) {
	layers := []string{
		";LAYER:0\n;TYPE:FILL\nG1 X10 Y10 E1\n",
		";LAYER:1\nG1 X90 Y80 E2\n",
		";LAYER:2\n;TYPE:SKIN\nG1 X5 Y95 E3\n",
	}

	res := Scan(layers)
	if res.Box.MinX != 5 || res.Box.MaxX != 90 || res.Box.MinY != 10 || res.Box.MaxY != 95 {
		t.Errorf("unexpected box: %+v", res.Box)
	}
}

func TestScanSkirtDoesNotWiden(t *testing.T) {
	layers := []string{
		";LAYER:0",
		";TYPE:WALL-INNER\nG1 X50 Y50 E1",
		";TYPE:SKIRT\nG1 X0 Y0 E2\nG1 X200 Y200 E3",
		";TYPE:WALL-OUTER\nG1 X60 Y70 E4",
	}

	res := Scan(layers)
	if res.Box.MinX != 50 || res.Box.MaxX != 60 || res.Box.MinY != 50 || res.Box.MaxY != 70 {
		t.Errorf("skirt moves leaked into box: %+v", res.Box)
	}
}

func TestScanFeatureState(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		want    bool
	}{
		{"outer wall", ";TYPE:WALL-OUTER", true},
		{"inner wall", ";TYPE:WALL-INNER", true},
		{"skin", ";TYPE:SKIN", true},
		{"fill", ";TYPE:FILL", true},
		{"support", ";TYPE:SUPPORT", true},
		{"support interface", ";TYPE:SUPPORT-INTERFACE", true},
		{"prime tower", ";TYPE:PRIME-TOWER", true},
		{"trailing space", ";TYPE:FILL  ", true},
		{"extra colon", ";TYPE:FILL:extra", true},
		{"skirt", ";TYPE:SKIRT", false},
		{"travel", ";TYPE:TRAVEL", false},
		{"lower case", ";TYPE:fill", false},
		{"indented", " ;TYPE:FILL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewParseState()
			st.EnteredFirstLayer = true
			st.Feed(tt.feature)
			got := st.Feed("G1 X10 Y10 E1")
			if got != tt.want {
				t.Errorf("Feed after %q absorbed=%v, want %v", tt.feature, got, tt.want)
			}
		})
	}
}

func TestScanMoveEligibility(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"G1 X10 Y10 E1", true},
		{"G0 X10 Y10 E1", true},
		{"G1 Y10 X10 E1", true},
		{"G1 X10.5 Y-3 E0.2 F1500", true},
		{"G1 X10 Y10 E1 ; comment", true},
		{"G1 X10 Y10", false},
		{"G1 X10 Y10 ; E in comment", false},
		{"G1 X10 E1", false},
		{"G1 Y10 E1", false},
		{"G2 X10 Y10 I1 J1 E1", false},
		{"G10 X10 Y10 E1", false},
		{"M104 X10 Y10 E1", false},
		{"G1 X1.2.3 Y10 E1", false},
		{"G1 Xabc Y10 E1", false},
		{"G1 X Y10 E1", false},
		{"G1 X10 Y10 E1\r", true},
	}

	for _, tt := range tests {
		st := NewParseState()
		st.EnteredFirstLayer = true
		st.FeatureAllowed = true
		if got := st.Feed(tt.line); got != tt.want {
			t.Errorf("Feed(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestScanNegativeCoordinates(t *testing.T) {
	layers := []string{
		";LAYER:0\n;TYPE:WALL-OUTER\nG1 X-15.2 Y-3.4 E1\nG1 X20 Y20 E2\n",
	}

	res := Scan(layers)
	if !res.Found {
		t.Fatal("expected geometry to be found")
	}
	if res.Box.MinX != -15.2 || res.Box.MinY != -3.4 {
		t.Errorf("negative coordinates not captured: %+v", res.Box)
	}
}

func TestScanBedLimits(t *testing.T) {
	tests := []struct {
		line  string
		wantW float64
		wantH float64
	}{
		{";BED_LIMITS X220 Y235", 220, 235},
		{";BED_LIMITS X220.5 Y235.25", 220.5, 235.25},
		{";BED_LIMITS: X=220 Y=235", 300, 300}, // '=' breaks the field
		{";BED_LIMITS size X220 and Y235 mm", 220, 235},
		{";BED_LIMITS X0 Y0 X350 Y350", 350, 350},
		{";BED_LIMITS X220", 300, 300},
		{";BED_LIMITS Y235 X220", 300, 300},
		{"; nothing here X220 Y235", 300, 300},
	}

	for _, tt := range tests {
		st := NewParseState()
		st.Feed(tt.line)
		if st.BedWidth != tt.wantW || st.BedHeight != tt.wantH {
			t.Errorf("Feed(%q) bed = %vx%v, want %vx%v", tt.line, st.BedWidth, st.BedHeight, tt.wantW, tt.wantH)
		}
	}
}

func TestScanBedLimitsLastWins(t *testing.T) {
	layers := []string{
		";BED_LIMITS X220 Y220\n",
		";LAYER:0\n;BED_LIMITS X180 Y190\n;TYPE:FILL\nG1 X10 Y10 E1\n",
	}

	res := Scan(layers)
	if res.BedWidth != 180 || res.BedHeight != 190 {
		t.Errorf("expected last bed limits to win, got %vx%v", res.BedWidth, res.BedHeight)
	}
}

func TestScanNothingFound(t *testing.T) {
	layers := []string{
		";FLAVOR:RepRap\nG28\n",
		";LAYER:0\n;TYPE:SKIRT\nG1 X10 Y10 E1\n",
	}

	res := Scan(layers)
	if res.Found {
		t.Errorf("expected nothing found, got box %+v", res.Box)
	}
	if !res.Box.IsEmpty() {
		t.Errorf("expected empty box, got %+v", res.Box)
	}
}

func TestBoundingBoxExtend(t *testing.T) {
	b := EmptyBox()
	if !b.IsEmpty() {
		t.Fatal("new box should be empty")
	}
	b.Extend(5, 7)
	if b.IsEmpty() {
		t.Fatal("box should not be empty after Extend")
	}
	if b.MinX != 5 || b.MaxX != 5 || b.MinY != 7 || b.MaxY != 7 {
		t.Errorf("unexpected box after one point: %+v", b)
	}
	b.Extend(1, 9)
	b.Extend(3, 8)
	if b.MinX != 1 || b.MaxX != 5 || b.MinY != 7 || b.MaxY != 9 {
		t.Errorf("unexpected box: %+v", b)
	}
}
