// Package snapshot defines the read-only views the bridge consumes. The
// recorder that owns the radio sources, systems, calls and recorders
// implements these interfaces; the bridge only ever calls accessors and
// never holds on to a view beyond the hook that received it.
//
// The package also carries plain record types ([Source], [System],
// [Call], [Recorder], [Config]) that satisfy the views. The sidecar host
// decodes its stdin feed into them, and tests use them as fixtures.
package snapshot

// GainStage is one named gain element of an SDR source.
type GainStage struct {
	Name  string  `json:"stage_name"`
	Value float64 `json:"value"`
}

// SourceView exposes one SDR source.
type SourceView interface {
	Num() int
	Antenna() string
	SilenceFrames() int
	MinHz() float64
	MaxHz() float64
	Center() float64
	Rate() float64
	Driver() string
	Device() string
	// FreqError is the configured frequency correction, published as "error".
	FreqError() float64
	Gain() float64
	// GainStages returns the stages in the order the driver reports them.
	GainStages() []GainStage
	AnalogRecorders() int
	DigitalRecorders() int
	DebugRecorders() int
	SigMFRecorders() int
}

// Bandplan holds the SmartNet band-plan parameters. Only meaningful when
// the owning system's type is [TypeSmartNet].
type Bandplan struct {
	Name    string  `json:"bandplan"`
	Freq    float64 `json:"bandfreq"`
	Base    float64 `json:"bandplan_base"`
	High    float64 `json:"bandplan_high"`
	Spacing float64 `json:"bandplan_spacing"`
	Offset  int     `json:"bandplan_offset"`
}

// SystemView exposes one logical trunked or conventional system.
type SystemView interface {
	SysNum() int
	ShortName() string
	SystemType() string
	AudioArchive() bool
	UploadScript() string
	RecordUnknown() bool
	CallLog() bool
	TalkgroupsFile() string
	AnalogLevels() float64
	DigitalLevels() float64
	QPSK() bool
	SquelchDB() float64
	Channels() []float64
	ControlChannels() []float64
	Bandplan() Bandplan
	// DecodeRate is the control channel message rate over the last
	// reporting interval, in messages per second.
	DecodeRate() float64
	CurrentControlChannel() float64
}

// CallRecorder describes the recorder attached to an active call.
type CallRecorder struct {
	Num    int    `json:"rec_num"`
	SrcNum int    `json:"src_num"`
	State  string `json:"state"`
	Analog bool   `json:"analog"`
}

// CallView exposes one call in progress.
type CallView interface {
	ID() string
	CallNum() int64
	Freq() float64
	SysNum() int
	ShortName() string
	Talkgroup() int64
	TalkgroupAlphaTag() string
	TalkgroupDescription() string
	TalkgroupTag() string
	TalkgroupGroup() string
	Elapsed() int64
	Length() float64
	State() string
	Phase2() bool
	Conventional() bool
	Encrypted() bool
	Emergency() bool
	StartTime() int64
	StopTime() int64
	SrcID() int64
	// Recorder reports the attached recorder, if any.
	Recorder() (CallRecorder, bool)
}

// RecorderView exposes one recorder slot.
type RecorderView interface {
	ID() string
	Type() string
	SourceNum() int
	Num() int
	Count() int
	Duration() float64
	State() string
}

// ConfigView exposes the recorder's process-wide configuration.
type ConfigView interface {
	CaptureDir() string
	UploadServer() string
	CallTimeout() int
	LogFile() string
	InstanceID() string
	InstanceKey() string
	BroadcastSignals() bool
}

// CallSummary is the data passed to the call-end hook.
type CallSummary struct {
	CallNum   int64   `json:"call_num"`
	Talkgroup int64   `json:"talkgroup"`
	ShortName string  `json:"short_name"`
	Filename  string  `json:"filename"`
	Length    float64 `json:"length"`
}
