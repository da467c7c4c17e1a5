package snapshot

// Source is a decoded SDR source snapshot.
type Source struct {
	SourceNum  int         `json:"source_num"`
	AntennaID  string      `json:"antenna"`
	Silence    int         `json:"silence_frames"`
	Min        float64     `json:"min_hz"`
	Max        float64     `json:"max_hz"`
	CenterHz   float64     `json:"center"`
	SampleRate float64     `json:"rate"`
	DriverName string      `json:"driver"`
	DeviceArgs string      `json:"device"`
	ErrorHz    float64     `json:"error"`
	GainValue  float64     `json:"gain"`
	Stages     []GainStage `json:"gain_stages"`
	Analog     int         `json:"analog_recorders"`
	Digital    int         `json:"digital_recorders"`
	Debug      int         `json:"debug_recorders"`
	SigMF      int         `json:"sigmf_recorders"`
}

func (s *Source) Num() int                { return s.SourceNum }
func (s *Source) Antenna() string         { return s.AntennaID }
func (s *Source) SilenceFrames() int      { return s.Silence }
func (s *Source) MinHz() float64          { return s.Min }
func (s *Source) MaxHz() float64          { return s.Max }
func (s *Source) Center() float64         { return s.CenterHz }
func (s *Source) Rate() float64           { return s.SampleRate }
func (s *Source) Driver() string          { return s.DriverName }
func (s *Source) Device() string          { return s.DeviceArgs }
func (s *Source) FreqError() float64      { return s.ErrorHz }
func (s *Source) Gain() float64           { return s.GainValue }
func (s *Source) GainStages() []GainStage { return s.Stages }
func (s *Source) AnalogRecorders() int    { return s.Analog }
func (s *Source) DigitalRecorders() int   { return s.Digital }
func (s *Source) DebugRecorders() int     { return s.Debug }
func (s *Source) SigMFRecorders() int     { return s.SigMF }

// System is a decoded system snapshot.
type System struct {
	Num            int       `json:"sys_num"`
	Name           string    `json:"short_name"`
	Type           string    `json:"system_type"`
	Archive        bool      `json:"audio_archive"`
	Script         string    `json:"upload_script"`
	Unknown        bool      `json:"record_unknown"`
	Log            bool      `json:"call_log"`
	Talkgroups     string    `json:"talkgroups_file"`
	Analog         float64   `json:"analog_levels"`
	Digital        float64   `json:"digital_levels"`
	Modulation     bool      `json:"qpsk"`
	Squelch        float64   `json:"squelch_db"`
	VoiceChannels  []float64 `json:"channels"`
	ControlFreqs   []float64 `json:"control_channels"`
	Plan           Bandplan  `json:"bandplan"`
	Rate           float64   `json:"decode_rate"`
	CurrentControl float64   `json:"current_control_channel"`
}

func (s *System) SysNum() int                    { return s.Num }
func (s *System) ShortName() string              { return s.Name }
func (s *System) SystemType() string             { return s.Type }
func (s *System) AudioArchive() bool             { return s.Archive }
func (s *System) UploadScript() string           { return s.Script }
func (s *System) RecordUnknown() bool            { return s.Unknown }
func (s *System) CallLog() bool                  { return s.Log }
func (s *System) TalkgroupsFile() string         { return s.Talkgroups }
func (s *System) AnalogLevels() float64          { return s.Analog }
func (s *System) DigitalLevels() float64         { return s.Digital }
func (s *System) QPSK() bool                     { return s.Modulation }
func (s *System) SquelchDB() float64             { return s.Squelch }
func (s *System) Channels() []float64            { return s.VoiceChannels }
func (s *System) ControlChannels() []float64     { return s.ControlFreqs }
func (s *System) Bandplan() Bandplan             { return s.Plan }
func (s *System) DecodeRate() float64            { return s.Rate }
func (s *System) CurrentControlChannel() float64 { return s.CurrentControl }

// Call is a decoded call snapshot.
type Call struct {
	CallID      string        `json:"id"`
	Number      int64         `json:"call_num"`
	Frequency   float64       `json:"freq"`
	System      int           `json:"sys_num"`
	Name        string        `json:"short_name"`
	TG          int64         `json:"talkgroup"`
	TGAlphaTag  string        `json:"talkgroup_alpha_tag"`
	TGDesc      string        `json:"talkgroup_description"`
	TGTag       string        `json:"talkgroup_tag"`
	TGGroup     string        `json:"talkgroup_group"`
	ElapsedSec  int64         `json:"elapsed"`
	LengthSec   float64       `json:"length"`
	CallState   string        `json:"state"`
	IsPhase2    bool          `json:"phase2"`
	IsConv      bool          `json:"conventional"`
	IsEncrypted bool          `json:"encrypted"`
	IsEmergency bool          `json:"emergency"`
	Start       int64         `json:"start_time"`
	Stop        int64         `json:"stop_time"`
	Unit        int64         `json:"src_id"`
	Rec         *CallRecorder `json:"recorder,omitempty"`
}

func (c *Call) ID() string                   { return c.CallID }
func (c *Call) CallNum() int64               { return c.Number }
func (c *Call) Freq() float64                { return c.Frequency }
func (c *Call) SysNum() int                  { return c.System }
func (c *Call) ShortName() string            { return c.Name }
func (c *Call) Talkgroup() int64             { return c.TG }
func (c *Call) TalkgroupAlphaTag() string    { return c.TGAlphaTag }
func (c *Call) TalkgroupDescription() string { return c.TGDesc }
func (c *Call) TalkgroupTag() string         { return c.TGTag }
func (c *Call) TalkgroupGroup() string       { return c.TGGroup }
func (c *Call) Elapsed() int64               { return c.ElapsedSec }
func (c *Call) Length() float64              { return c.LengthSec }
func (c *Call) State() string                { return c.CallState }
func (c *Call) Phase2() bool                 { return c.IsPhase2 }
func (c *Call) Conventional() bool           { return c.IsConv }
func (c *Call) Encrypted() bool              { return c.IsEncrypted }
func (c *Call) Emergency() bool              { return c.IsEmergency }
func (c *Call) StartTime() int64             { return c.Start }
func (c *Call) StopTime() int64              { return c.Stop }
func (c *Call) SrcID() int64                 { return c.Unit }

func (c *Call) Recorder() (CallRecorder, bool) {
	if c.Rec == nil {
		return CallRecorder{}, false
	}
	return *c.Rec, true
}

// Recorder is a decoded recorder snapshot.
type Recorder struct {
	RecorderID string  `json:"id"`
	Kind       string  `json:"type"`
	SrcNum     int     `json:"src_num"`
	RecNum     int     `json:"rec_num"`
	Calls      int     `json:"count"`
	Seconds    float64 `json:"duration"`
	RecState   string  `json:"state"`
}

func (r *Recorder) ID() string        { return r.RecorderID }
func (r *Recorder) Type() string      { return r.Kind }
func (r *Recorder) SourceNum() int    { return r.SrcNum }
func (r *Recorder) Num() int          { return r.RecNum }
func (r *Recorder) Count() int        { return r.Calls }
func (r *Recorder) Duration() float64 { return r.Seconds }
func (r *Recorder) State() string     { return r.RecState }

// Config is a decoded process configuration snapshot.
type Config struct {
	Capture   string `json:"capture_dir"`
	Upload    string `json:"upload_server"`
	Timeout   int    `json:"call_timeout"`
	Log       string `json:"log_file"`
	Instance  string `json:"instance_id"`
	Key       string `json:"instance_key"`
	Broadcast bool   `json:"broadcast_signals"`
}

func (c *Config) CaptureDir() string     { return c.Capture }
func (c *Config) UploadServer() string   { return c.Upload }
func (c *Config) CallTimeout() int       { return c.Timeout }
func (c *Config) LogFile() string        { return c.Log }
func (c *Config) InstanceID() string     { return c.Instance }
func (c *Config) InstanceKey() string    { return c.Key }
func (c *Config) BroadcastSignals() bool { return c.Broadcast }

// Compile-time interface checks.
var (
	_ SourceView   = (*Source)(nil)
	_ SystemView   = (*System)(nil)
	_ CallView     = (*Call)(nil)
	_ RecorderView = (*Recorder)(nil)
	_ ConfigView   = (*Config)(nil)
)
