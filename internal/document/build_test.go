package document

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/nugget/trunk-status/internal/snapshot"
)

func testSmartNet() *snapshot.System {
	return &snapshot.System{
		Num:           2,
		Name:          "county",
		Type:          snapshot.TypeSmartNet,
		VoiceChannels: []float64{851.1e6, 851.2e6},
		ControlFreqs:  []float64{856.7375e6, 857.7375e6},
		Plan: snapshot.Bandplan{
			Name:    "800_reband",
			Freq:    800,
			Base:    851.0125,
			High:    869.9875,
			Spacing: 0.025,
			Offset:  380,
		},
	}
}

var bandplanKeys = []string{
	"bandplan", "bandfreq", "bandplan_base",
	"bandplan_high", "bandplan_spacing", "bandplan_offset",
}

func TestSource_FieldOrder(t *testing.T) {
	src := &snapshot.Source{
		SourceNum:  0,
		AntennaID:  "RX2",
		DriverName: "osmosdr",
		Stages: []snapshot.GainStage{
			{Name: "LNA", Value: 32},
			{Name: "MIX", Value: 0},
		},
	}

	got := Source(src).Keys()
	want := []string{
		"source_num", "antenna", "silence_frames", "min_hz", "max_hz",
		"center", "rate", "driver", "device", "error", "gain",
		"LNA_gain", "MIX_gain", "gain_stages",
		"analog_recorders", "digital_recorders", "debug_recorders", "sigmf_recorders",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keys =\n%v\nwant\n%v", got, want)
	}
}

func TestSource_GainStagesListOrder(t *testing.T) {
	src := &snapshot.Source{
		Stages: []snapshot.GainStage{
			{Name: "LNA", Value: 32},
			{Name: "VGA", Value: 16},
			{Name: "AMP", Value: 0},
		},
	}

	v, ok := Source(src).Get("gain_stages")
	if !ok {
		t.Fatal("gain_stages missing")
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `[{"stage_name":"LNA","value":32},{"stage_name":"VGA","value":16},{"stage_name":"AMP","value":0}]`
	if string(data) != want {
		t.Errorf("gain_stages = %s, want %s", data, want)
	}
}

func TestSystem_SmartNetHasBandplan(t *testing.T) {
	o := System(testSmartNet())

	for _, k := range bandplanKeys {
		if _, ok := o.Get(k); !ok {
			t.Errorf("smartnet system missing %q", k)
		}
	}
	ch, _ := o.Get("channels")
	if !reflect.DeepEqual(ch, Floats([]float64{856.7375e6, 857.7375e6})) {
		t.Errorf("channels = %v, want control channels", ch)
	}
}

func TestSystem_ConventionalUsesVoiceChannels(t *testing.T) {
	for _, typ := range []string{snapshot.TypeConventional, snapshot.TypeConventionalP25} {
		t.Run(typ, func(t *testing.T) {
			sys := testSmartNet()
			sys.Type = typ
			o := System(sys)

			for _, k := range bandplanKeys {
				if _, ok := o.Get(k); ok {
					t.Errorf("%s system has unexpected key %q", typ, k)
				}
			}
			ch, _ := o.Get("channels")
			if !reflect.DeepEqual(ch, Floats(sys.VoiceChannels)) {
				t.Errorf("channels = %v, want %v", ch, sys.VoiceChannels)
			}
		})
	}
}

func TestSystem_GenericTypeUsesControlChannels(t *testing.T) {
	sys := testSmartNet()
	sys.Type = snapshot.TypeP25
	o := System(sys)

	if o.Len() != 13 {
		t.Errorf("Len() = %d, want 13 (no extension keys)", o.Len())
	}
	ch, _ := o.Get("channels")
	if !reflect.DeepEqual(ch, Floats(sys.ControlFreqs)) {
		t.Errorf("channels = %v, want %v", ch, sys.ControlFreqs)
	}
}

func TestSystemSetup_StatsThenConfig(t *testing.T) {
	o := SystemSetup(testSmartNet())

	keys := o.Keys()
	if len(keys) != 3+13+6 {
		t.Fatalf("Len() = %d, want 22", len(keys))
	}
	if want := []string{"id", "name", "type", "audioArchive"}; !reflect.DeepEqual(keys[:4], want) {
		t.Errorf("leading keys = %v, want %v", keys[:4], want)
	}
	if v, _ := o.Get("type"); v != snapshot.TypeSmartNet {
		t.Errorf("type = %v", v)
	}

	l := SystemSetupList([]snapshot.SystemView{testSmartNet()})
	if len(l) != 1 || l[0].(*Object).Len() != 22 {
		t.Errorf("SystemSetupList() = %v", l)
	}
}

func TestSystem_ZeroValuesKept(t *testing.T) {
	data, err := json.Marshal(System(&snapshot.System{Type: snapshot.TypeConventional}))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"audioArchive":false,"systemType":"conventional","shortName":"","sysNum":0,` +
		`"uploadScript":"","recordUnkown":false,"callLog":false,"talkgroupsFile":"",` +
		`"analog_levels":0,"digital_levels":0,"qpsk":false,"squelch_db":0,"channels":[]}`
	if string(data) != want {
		t.Errorf("json =\n%s\nwant\n%s", data, want)
	}
}

func TestCall_RecorderFieldsOnlyWhenAttached(t *testing.T) {
	c := &snapshot.Call{CallID: "1_8001_1700000000", TG: 8001}
	without := Call(c)
	if _, ok := without.Get("recNum"); ok {
		t.Error("recNum present without a recorder")
	}
	if without.Len() != 20 {
		t.Errorf("Len() = %d, want 20", without.Len())
	}

	c.Rec = &snapshot.CallRecorder{Num: 3, SrcNum: 0, State: "RECORDING", Analog: false}
	with := Call(c)
	keys := with.Keys()
	tail := keys[len(keys)-4:]
	if !reflect.DeepEqual(tail, []string{"recNum", "srcNum", "recState", "analog"}) {
		t.Errorf("trailing keys = %v", tail)
	}
}

func TestRecorder(t *testing.T) {
	r := &snapshot.Recorder{RecorderID: "0_3", Kind: "P25", RecNum: 3, RecState: "IDLE"}
	data, err := json.Marshal(Recorder(r))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"id":"0_3","type":"P25","srcNum":0,"recNum":3,"count":0,"duration":0,"state":"IDLE"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestSystemRates(t *testing.T) {
	sys := &snapshot.System{Num: 1, Rate: 38.5, CurrentControl: 856.7375e6}
	o := SystemRates(sys, 3.0)
	if !reflect.DeepEqual(o.Keys(), []string{"id", "decoderate", "decoderate_interval", "control_channel"}) {
		t.Errorf("keys = %v", o.Keys())
	}
	if v, _ := o.Get("decoderate_interval"); v != 3.0 {
		t.Errorf("decoderate_interval = %v, want 3", v)
	}
}

func TestConfig_Layout(t *testing.T) {
	cfg := &snapshot.Config{
		Capture:  "/var/lib/tr",
		Upload:   "https://example.net",
		Timeout:  3,
		Log:      "/var/log/tr.log",
		Instance: "site-a",
	}
	sources := []snapshot.SourceView{&snapshot.Source{SourceNum: 0}, &snapshot.Source{SourceNum: 1}}
	systems := []snapshot.SystemView{testSmartNet()}

	o := Config(sources, systems, cfg)
	want := []string{
		"sources", "systems", "captureDir", "uploadServer", "callTimeout",
		"logFile", "instanceId", "instanceKey", "type",
	}
	if !reflect.DeepEqual(o.Keys(), want) {
		t.Errorf("keys = %v, want %v", o.Keys(), want)
	}
	if v, _ := o.Get("sources"); len(v.(List)) != 2 {
		t.Errorf("sources len = %d, want 2", len(v.(List)))
	}

	cfg.Broadcast = true
	o = Config(sources, systems, cfg)
	if v, ok := o.Get("broadcast_signals"); !ok || v != true {
		t.Errorf("broadcast_signals = %v, %v; want true", v, ok)
	}
}

func TestLists_PreserveInputOrder(t *testing.T) {
	calls := []snapshot.CallView{
		&snapshot.Call{CallID: "c"},
		&snapshot.Call{CallID: "a"},
		&snapshot.Call{CallID: "b"},
	}
	l := CallList(calls)
	for i, want := range []string{"c", "a", "b"} {
		id, _ := l[i].(*Object).Get("id")
		if id != want {
			t.Errorf("calls[%d].id = %v, want %s", i, id, want)
		}
	}

	if got := RecorderList(nil); got == nil || len(got) != 0 {
		t.Errorf("RecorderList(nil) = %#v, want empty list", got)
	}
}
